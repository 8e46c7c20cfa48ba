// Package catalog loads the level table and the achievement catalog from a
// JSON file at process start. Missing sections fall back to the built-in
// defaults.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"

	"github.com/alem-hub/habit-hub/internal/domain/achievement"
	"github.com/alem-hub/habit-hub/internal/domain/level"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
)

// File is the on-disk catalog layout.
type File struct {
	Levels       []level.Config            `json:"levels" validate:"omitempty,dive"`
	Achievements []achievement.Achievement `json:"achievements" validate:"omitempty,dive"`
}

// Catalogs is the validated, immutable result of loading a File.
type Catalogs struct {
	Levels       *level.Table
	Achievements *achievement.Catalog
}

// Defaults returns the built-in catalogs.
func Defaults() *Catalogs {
	return &Catalogs{
		Levels:       level.DefaultTable(),
		Achievements: achievement.DefaultCatalog(),
	}
}

// Load reads path. An empty path yields the defaults.
func Load(path string) (*Catalogs, error) {
	if path == "" {
		return Defaults(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode parses, validates and builds catalogs from r.
func Decode(r io.Reader) (*Catalogs, error) {
	var file File
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, shared.WrapError("catalog", "Decode", shared.ErrInvalidCatalog, "malformed catalog file", err)
	}
	return Build(file)
}

// Build validates file and constructs the domain catalogs.
func Build(file File) (*Catalogs, error) {
	for i := range file.Achievements {
		a := &file.Achievements[i]
		if strings.TrimSpace(a.Code) == "" {
			a.Code = slug.Make(a.Title)
		}
	}

	if err := newValidator().Struct(file); err != nil {
		return nil, validationError(err)
	}

	out := Defaults()

	if len(file.Levels) > 0 {
		table, err := level.NewTable(file.Levels)
		if err != nil {
			return nil, err
		}
		out.Levels = table
	}

	if len(file.Achievements) > 0 {
		cat, err := achievement.NewCatalog(file.Achievements)
		if err != nil {
			return nil, err
		}
		out.Achievements = cat
	}

	return out, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.WrapError("catalog", "Validate", shared.ErrInvalidCatalog, "validation failed", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return shared.NewDomainError("catalog", "Validate", shared.ErrInvalidCatalog, strings.Join(msgs, "; "))
}
