package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/project"
	"kiln/internal/projpath"
)

type commandContext struct {
	configFlag *string
	dirFlag    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, dirFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		dirFlag:    dirFlag,
	}
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
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureLogger builds the shared structured logger writing to the
// configured log directory. Terminal output stays on stdout; the log
// file carries the full run detail.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
			c.loggerErr = fmt.Errorf("create log directory: %w", err)
			return
		}
		c.logger, c.loggerErr = logging.New(logging.Options{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			OutputPaths: []string{filepath.Join(cfg.Paths.LogDir, "kiln.log")},
		})
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) workingDir() (string, error) {
	if c.dirFlag != nil && strings.TrimSpace(*c.dirFlag) != "" {
		return filepath.Abs(strings.TrimSpace(*c.dirFlag))
	}
	return os.Getwd()
}

// openProject locates the project root at or above the working
// directory and opens it.
func (c *commandContext) openProject() (*project.Project, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	dir, err := c.workingDir()
	if err != nil {
		return nil, err
	}
	root, ok := project.Search(dir)
	if !ok {
		return nil, fmt.Errorf("no kiln project at or above %s (run 'kiln init')", dir)
	}
	return project.Open(root, cfg, logger)
}

func (c *commandContext) withProject(fn func(*project.Project) error) error {
	p, err := c.openProject()
	if err != nil {
		return err
	}
	defer p.Close()
	return fn(p)
}

// projectPath interprets a command argument as a project path: an
// existing file or directory resolves against the working directory,
// anything else (including glob patterns) is taken project-relative.
func projectPath(p *project.Project, workingDir, arg string) (projpath.Path, error) {
	abs := arg
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(workingDir, arg)
	}
	if _, err := os.Stat(abs); err == nil {
		if rel, err := projpath.FromFS(p.Root(), abs); err == nil {
			return rel, nil
		}
	}
	return projpath.New(arg)
}

func (c *commandContext) projectPaths(p *project.Project, args []string) ([]projpath.Path, error) {
	dir, err := c.workingDir()
	if err != nil {
		return nil, err
	}
	paths := make([]projpath.Path, 0, len(args))
	for _, arg := range args {
		rel, err := projectPath(p, dir, arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, rel)
	}
	return paths, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
