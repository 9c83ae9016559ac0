package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/msbot/internal/rbac"
)

// Handler types understood by Build.
const (
	TypeEcho     = "echo"
	TypeAuthEcho = "auth_echo"
	TypeKeyword  = "keyword"
	TypeRemote   = "remote"
	TypeStats    = "stats"
)

// Manifest lists the handlers to register, in selection order.
type Manifest struct {
	Handlers []Spec `yaml:"handlers"`
}

// Spec describes one handler entry.
type Spec struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	// Enabled defaults to true when omitted.
	Enabled            *bool         `yaml:"enabled"`
	Default            bool          `yaml:"default"`
	RequiredPermission string        `yaml:"required_permission"`
	Prefixes           []string      `yaml:"prefixes"`
	Reply              string        `yaml:"reply"`
	Endpoint           string        `yaml:"endpoint"`
	Timeout            time.Duration `yaml:"timeout"`
	RatePerSecond      float64       `yaml:"rate_per_second"`
	Burst              int           `yaml:"burst"`
}

// BuildOptions carries the collaborators some handler types need.
type BuildOptions struct {
	HTTPClient *http.Client
	Report     ReportFunc
}

// DefaultManifest registers echo as the only, default handler.
func DefaultManifest() Manifest {
	return Manifest{Handlers: []Spec{{
		Name:        "echo",
		Type:        TypeEcho,
		Description: "Repeats the message back",
		Default:     true,
	}}}
}

// LoadManifest reads a YAML manifest from path.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("handler: read manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks names, types and permissions without building anything.
func (m Manifest) Validate() error {
	var errs []error
	defaults := 0
	seen := make(map[string]struct{}, len(m.Handlers))
	for i, spec := range m.Handlers {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("handlers[%d]: name is required", i))
			continue
		}
		if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("handlers[%d]: %s: %w", i, name, ErrDuplicateName))
		}
		seen[name] = struct{}{}
		switch spec.Type {
		case TypeEcho, TypeAuthEcho, TypeStats:
		case TypeKeyword:
			if len(spec.Prefixes) == 0 || spec.Reply == "" {
				errs = append(errs, fmt.Errorf("handlers[%d]: %s: keyword handlers need prefixes and a reply", i, name))
			}
		case TypeRemote:
			if strings.TrimSpace(spec.Endpoint) == "" {
				errs = append(errs, fmt.Errorf("handlers[%d]: %s: remote handlers need an endpoint", i, name))
			}
		default:
			errs = append(errs, fmt.Errorf("handlers[%d]: %s: unknown type %q", i, name, spec.Type))
		}
		if spec.RequiredPermission != "" {
			if _, err := rbac.ParsePermission(spec.RequiredPermission); err != nil {
				errs = append(errs, fmt.Errorf("handlers[%d]: %s: %w", i, name, err))
			}
		}
		if spec.Default {
			defaults++
		}
	}
	if defaults > 1 {
		errs = append(errs, errors.New("at most one handler may be the default"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, errors.Join(errs...))
	}
	return nil
}

// Build constructs every handler in m and registers it on reg.
func Build(reg *Registry, m Manifest, opts BuildOptions) error {
	if err := m.Validate(); err != nil {
		return err
	}
	for _, spec := range m.Handlers {
		h, err := buildOne(spec, opts)
		if err != nil {
			return err
		}
		if err := reg.Register(spec.Name, h, spec.Default); err != nil {
			return err
		}
		if spec.Enabled != nil && !*spec.Enabled {
			if err := reg.SetEnabled(spec.Name, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildOne(spec Spec, opts BuildOptions) (Handler, error) {
	var perm rbac.Permission
	if spec.RequiredPermission != "" {
		perm, _ = rbac.ParsePermission(spec.RequiredPermission)
	}
	switch spec.Type {
	case TypeEcho:
		return NewEcho(spec.Name, spec.Description, perm), nil
	case TypeAuthEcho:
		return NewAuthEcho(spec.Name, spec.Description, perm), nil
	case TypeKeyword:
		return NewKeyword(spec.Name, spec.Description, perm, spec.Prefixes, spec.Reply), nil
	case TypeStats:
		report := opts.Report
		if report == nil {
			report = func(context.Context) (string, error) {
				return "", errors.New("no report source configured")
			}
		}
		return NewStats(spec.Name, spec.Description, perm, spec.Prefixes, report), nil
	case TypeRemote:
		return NewRemote(RemoteConfig{
			Name:          spec.Name,
			Description:   spec.Description,
			Endpoint:      spec.Endpoint,
			Permission:    perm,
			Prefixes:      spec.Prefixes,
			Timeout:       spec.Timeout,
			RatePerSecond: spec.RatePerSecond,
			Burst:         spec.Burst,
			Client:        opts.HTTPClient,
		})
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidManifest, spec.Type)
}
