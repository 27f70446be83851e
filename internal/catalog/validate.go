package catalog

import (
	"errors"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pressplay/arcade/internal/apperr"
	"github.com/pressplay/arcade/internal/domain"
)

// buildRecord runs the full publish/update validation and returns the record
// with parsed commands. No field of the input survives unvalidated.
func (m *Manager) buildRecord(developer string, spec domain.GameSpec) (*domain.GameRecord, error) {
	if err := m.validate.Struct(spec); err != nil {
		return nil, structError(err)
	}
	if !spec.Type.Valid() {
		return nil, apperr.Validation("type", "type must be CLI, GUI or Multiplayer")
	}

	version, err := domain.ParseVersion(spec.Version)
	if err != nil {
		return nil, apperr.Validation("version", err.Error())
	}

	minPlayers := spec.MinPlayers
	if minPlayers == 0 {
		minPlayers = 1
	}
	maxPlayers := spec.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = domain.DefaultMaxPlayers
	}
	if minPlayers < 1 {
		return nil, apperr.Validation("min_players", "min_players must be at least 1")
	}
	if maxPlayers < minPlayers {
		return nil, apperr.Validation("max_players", "max_players must be >= min_players")
	}

	launch, err := domain.ParseCommand(spec.LaunchCommand)
	if err != nil {
		return nil, apperr.Validation("launch_command", err.Error())
	}
	// The placeholders must appear verbatim; a template without them cannot
	// be parameterized at launch time.
	if !strings.Contains(spec.LaunchCommand, "{host}") || !strings.Contains(spec.LaunchCommand, "{port}") {
		return nil, apperr.Validation("launch_command", "launch command must contain {host} and {port}")
	}

	var server domain.Command
	if strings.TrimSpace(spec.ServerCommand) != "" {
		server, err = domain.ParseCommand(spec.ServerCommand)
		if err != nil {
			return nil, apperr.Validation("server_command", err.Error())
		}
		if !strings.Contains(spec.ServerCommand, "{port}") {
			return nil, apperr.Validation("server_command", "server command must contain {port}")
		}
	}

	var compile domain.Command
	if strings.TrimSpace(spec.CompileCommand) != "" {
		compile, err = domain.ParseCommand(spec.CompileCommand)
		if err != nil {
			return nil, apperr.Validation("compile_command", err.Error())
		}
	}

	if err := checkBundleDir(spec.BundleDir); err != nil {
		return nil, err
	}

	return &domain.GameRecord{
		Developer:      developer,
		Name:           spec.Name,
		Type:           spec.Type,
		Description:    spec.Description,
		MinPlayers:     minPlayers,
		MaxPlayers:     maxPlayers,
		Version:        version,
		BundleDir:      spec.BundleDir,
		LaunchCommand:  launch,
		ServerCommand:  server,
		CompileCommand: compile,
	}, nil
}

// checkBundleDir requires an existing, non-empty directory.
func checkBundleDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return apperr.Validation("bundle_dir", "bundle path must be an existing directory")
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return apperr.Validation("bundle_dir", "bundle directory is empty")
	}
	return nil
}

var jsonFieldNames = map[string]string{
	"Name":           "name",
	"Type":           "type",
	"Description":    "description",
	"MinPlayers":     "min_players",
	"MaxPlayers":     "max_players",
	"Version":        "version",
	"BundleDir":      "bundle_dir",
	"LaunchCommand":  "launch_command",
	"ServerCommand":  "server_command",
	"CompileCommand": "compile_command",
}

// structError maps the first validator failure to a field-naming validation
// error, using the json casing clients actually sent.
func structError(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		field := errs[0].Field()
		if name, ok := jsonFieldNames[field]; ok {
			field = name
		}
		return apperr.Validation(field, "invalid or missing value")
	}
	return apperr.Validation("", err.Error())
}
