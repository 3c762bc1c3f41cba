package main

import (
	"log/slog"

	"github.com/androidleak/leak-triage/internal/bus"
	"github.com/androidleak/leak-triage/internal/config"
	"github.com/androidleak/leak-triage/internal/engine"
	"github.com/androidleak/leak-triage/internal/extractors"
	"github.com/androidleak/leak-triage/internal/repo"
)

// buildPipeline wires the filesystem stores, the event bus and the engine.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (*engine.Pipeline, bus.Publisher, error) {
	st := cfg.Storage
	cache := repo.NewModelCache(cfg.Cache.Models)

	schemas, err := repo.NewSchemaStore(st.SchemaPath(), logger)
	if err != nil {
		return nil, nil, err
	}
	models := repo.NewModelStore(st.ModelPath(), cache, logger)
	corpus := repo.NewCorpusStore(st.CorpusPath(), st.LockTimeout, logger)
	cases := repo.NewCaseStore(st.CasesDir, repo.CaseLayout{
		LogFile:        st.CaseLogFile,
		MasterListFile: st.MasterListFile,
		FlaggedFile:    st.FlaggedFile,
		RankedFile:     st.RankedFile,
		ModelFile:      st.CaseModelFile,
	}, cache, logger)
	lock := repo.NewFileLock(st.ArtifactLockPath(), st.LockTimeout)

	var publisher bus.Publisher = bus.Noop{}
	if cfg.Bus.Enabled {
		nats, err := bus.NewNATSPublisher(cfg.Bus.URL, cfg.Bus.SubjectPrefix, logger)
		if err != nil {
			logger.Warn("event bus unavailable, events disabled", slog.String("url", cfg.Bus.URL), slog.Any("error", err))
		} else {
			publisher = nats
		}
	}

	opts := engine.Options{
		Features: extractors.Options{
			OddHourStart: cfg.Features.OddHourStart,
			OddHourEnd:   cfg.Features.OddHourEnd,
			CommonTLDs:   cfg.Features.CommonTLDs,
		},
		Trees:                 cfg.Training.Trees,
		Seed:                  cfg.Training.Seed,
		CaseTestFraction:      cfg.Training.CaseTestFraction,
		GlobalTestFraction:    cfg.Training.GlobalTestFraction,
		ExcludeModelPredicted: cfg.Training.ExcludeModelPredicted,
	}
	return engine.NewPipeline(logger, schemas, models, corpus, cases, publisher, lock, opts), publisher, nil
}
