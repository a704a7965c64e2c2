package main

import (
	"strings"
	"sync"

	"fabula/internal/config"
	"fabula/internal/engine"
	"fabula/internal/recording"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the database for the duration of one command.
func (c *commandContext) withStore(fn func(cfg *config.Config, store *recording.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := recording.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

// withEngine opens the database and wires a full engine for one command.
func (c *commandContext) withEngine(fn func(eng *engine.Engine) error) error {
	return c.withStore(func(cfg *config.Config, store *recording.Store) error {
		eng, err := engine.New(engine.Options{Config: cfg, Store: store})
		if err != nil {
			return err
		}
		return fn(eng)
	})
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
