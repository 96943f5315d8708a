package capsule

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/mokrunka/taskwarrior-capsules/internal/meta"
	"github.com/mokrunka/taskwarrior-capsules/internal/taskw"
)

// Env is everything a capsule is constructed with. A fresh Env is built
// for every invocation; capsules must not keep it beyond the run.
type Env struct {
	Name  string
	RunID string

	// Meta persists one document per capsule name. May be nil, in which
	// case metadata reads as empty and saves fail.
	Meta meta.Store

	// Config is the capsule's section of the configuration document.
	Config map[string]any

	Tool    taskw.Tool
	Catalog Catalog
	Logger  *zap.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Instance carries the per-invocation state shared by every capsule
// implementation: identity, configuration view and persisted metadata.
// Capsules embed it.
type Instance struct {
	env    Env
	logger *zap.Logger

	config map[string]any

	doc       meta.Document
	docLoaded bool
}

// NewInstance wraps env, filling in nop defaults for missing writers and
// logger.
func NewInstance(env Env) *Instance {
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	if env.Stdin == nil {
		env.Stdin = os.Stdin
	}
	if env.Stdout == nil {
		env.Stdout = os.Stdout
	}
	if env.Stderr == nil {
		env.Stderr = os.Stderr
	}
	return &Instance{
		env:    env,
		logger: env.Logger.With(zap.String("capsule", env.Name)),
	}
}

func (i *Instance) Name() string { return i.env.Name }
func (i *Instance) RunID() string { return i.env.RunID }
func (i *Instance) Tool() taskw.Tool { return i.env.Tool }
func (i *Instance) Catalog() Catalog { return i.env.Catalog }
func (i *Instance) Store() meta.Store { return i.env.Meta }
func (i *Instance) Logger() *zap.Logger { return i.logger }
func (i *Instance) Stdin() io.Reader { return i.env.Stdin }
func (i *Instance) Stdout() io.Writer { return i.env.Stdout }
func (i *Instance) Stderr() io.Writer { return i.env.Stderr }

// Config returns the capsule's configuration section. It is copied on first
// use; later calls return the same map.
func (i *Instance) Config() map[string]any {
	if i.config == nil {
		i.config = make(map[string]any, len(i.env.Config))
		maps.Copy(i.config, i.env.Config)
	}
	return i.config
}

// ConfigBool returns a boolean setting. Strings "true", "yes", "on" and "1"
// count as true.
func (i *Instance) ConfigBool(key string) bool {
	switch v := i.Config()[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "on", "1":
			return true
		}
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

// ConfigInt returns an integer setting, or def when absent or not numeric.
func (i *Instance) ConfigInt(key string, def int) int {
	switch v := i.Config()[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

// ConfigStrings returns a list setting. A single string is split on
// whitespace; non-string list items are skipped.
func (i *Instance) ConfigStrings(key string) []string {
	switch v := i.Config()[key].(type) {
	case string:
		return strings.Fields(v)
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Metadata returns the capsule's persisted document, loading it on first
// use. A capsule that never saved anything gets an empty document.
func (i *Instance) Metadata(ctx context.Context) (meta.Document, error) {
	if i.docLoaded {
		return i.doc, nil
	}
	if i.env.Meta == nil {
		i.doc, i.docLoaded = meta.NewDocument(), true
		return i.doc, nil
	}
	doc, err := i.env.Meta.Get(ctx, i.env.Name)
	if err != nil {
		return meta.Document{}, fmt.Errorf("load metadata for %s: %w", i.env.Name, err)
	}
	i.doc, i.docLoaded = doc, true
	return doc, nil
}

// SaveMetadata replaces the capsule's persisted document.
func (i *Instance) SaveMetadata(ctx context.Context, doc meta.Document) error {
	if i.env.Meta == nil {
		return fmt.Errorf("save metadata for %s: no metadata store", i.env.Name)
	}
	if err := i.env.Meta.Put(ctx, i.env.Name, doc); err != nil {
		return fmt.Errorf("save metadata for %s: %w", i.env.Name, err)
	}
	i.doc, i.docLoaded = doc, true
	return nil
}
