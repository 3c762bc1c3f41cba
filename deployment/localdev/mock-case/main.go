package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/repo"
	"github.com/androidleak/leak-triage/internal/utils"
)

var (
	benignDomains = []string{"www.google.com", "graph.facebook.com", "api.whatsapp.net", "play.googleapis.com", "cdn.jsdelivr.net"}
	beaconDomains = []string{"sync.telemetry-cdn.xyz", "upd.k3yl0g.top", "c2.badhost.ru"}
)

type caseGenerator struct {
	rng       *rand.Rand
	rows      int
	beacons   int
	start     time.Time
	unlabeled bool
}

func main() {
	var (
		casesDir = flag.String("cases", "data/cases", "Directory case folders are created in")
		modelDir = flag.String("models", "data/models", "Directory the feature list is seeded in")
		name     = flag.String("case", "mock-case", "Case folder name")
		rows     = flag.Int("rows", 500, "Number of DNS log rows")
		beacons  = flag.Int("beacons", 3, "Number of beaconing IPs, all listed in the master list")
		seed     = flag.Int64("seed", 1, "Random seed")
		noMaster = flag.Bool("no-master", false, "Do not write a master list")
	)
	flag.Parse()

	logger := utils.NewLogger("info", false, os.Stderr)
	gen := caseGenerator{
		rng:       rand.New(rand.NewSource(*seed)),
		rows:      *rows,
		beacons:   *beacons,
		start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		unlabeled: *noMaster,
	}

	dir := filepath.Join(*casesDir, *name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("create case folder", slog.Any("error", err))
		os.Exit(1)
	}
	layout := repo.DefaultCaseLayout()
	if err := gen.writeLog(filepath.Join(dir, layout.LogFile)); err != nil {
		logger.Error("write case log", slog.Any("error", err))
		os.Exit(1)
	}
	if !gen.unlabeled {
		if err := gen.writeMaster(filepath.Join(dir, layout.MasterListFile)); err != nil {
			logger.Error("write master list", slog.Any("error", err))
			os.Exit(1)
		}
	}

	schemas, err := repo.NewSchemaStore(filepath.Join(*modelDir, "feature_list.json"), logger)
	if err != nil {
		logger.Error("open feature list", slog.Any("error", err))
		os.Exit(1)
	}
	if _, err := schemas.Load(); err != nil {
		if err := schemas.Save(models.DefaultFeatureSchema()); err != nil {
			logger.Error("seed feature list", slog.Any("error", err))
			os.Exit(1)
		}
	}

	logger.Info("mock case written", slog.String("dir", dir), slog.Int("rows", *rows), slog.Int("beacons", *beacons))
}

func (g caseGenerator) beaconIP(i int) string {
	return fmt.Sprintf("185.220.%d.%d", 100+i, 10+i)
}

func (g caseGenerator) writeLog(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{models.ColumnTimestamp, models.ColumnDomain, models.ColumnIP, "app"})
	for i := 0; i < g.rows; i++ {
		var ts time.Time
		var domain, ip, app string
		if g.beacons > 0 && g.rng.Intn(8) == 0 {
			b := g.rng.Intn(g.beacons)
			ts = g.start.Add(time.Duration(g.rng.Intn(7))*24*time.Hour + time.Duration(g.rng.Intn(5))*time.Hour)
			domain = beaconDomains[b%len(beaconDomains)]
			ip, app = g.beaconIP(b), "com.system.updater"
		} else {
			ts = g.start.Add(time.Duration(g.rng.Intn(7))*24*time.Hour + time.Duration(8+g.rng.Intn(13))*time.Hour)
			domain = benignDomains[g.rng.Intn(len(benignDomains))]
			ip, app = fmt.Sprintf("142.250.%d.%d", g.rng.Intn(4), 1+g.rng.Intn(250)), "com.android.chrome"
		}
		ts = ts.Add(time.Duration(g.rng.Intn(3600)) * time.Second)
		_ = w.Write([]string{ts.Format("2006-01-02 15:04:05"), domain, ip, app})
	}
	w.Flush()
	return w.Error()
}

func (g caseGenerator) writeMaster(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{models.ColumnIP, "note"})
	for i := 0; i < g.beacons; i++ {
		_ = w.Write([]string{g.beaconIP(i), "known beacon"})
	}
	w.Flush()
	return w.Error()
}
