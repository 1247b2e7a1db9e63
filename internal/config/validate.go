package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/flemzord/chanreset/internal/cron"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a defaulted Config. Struct tag violations and cross-field
// checks are reported together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version != "" && cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	}

	if err := cron.ValidateSchedule(cfg.Schedule.Sweep); err != nil {
		errs = append(errs, fmt.Errorf("config: schedule.sweep: %w", err))
	}

	if cfg.Archive.HasSink(SinkDiscord) && cfg.Archive.GraveyardChannel == "" {
		errs = append(errs, errors.New("config: archive.graveyard_channel is required by the discord sink"))
	}

	switch cfg.Store.Driver {
	case DriverFile, DriverSQLite:
		if cfg.Store.Path == "" {
			errs = append(errs, fmt.Errorf("config: store.path is required by the %s driver", cfg.Store.Driver))
		}
	case DriverPostgres:
		if cfg.Store.DSN == "" {
			errs = append(errs, errors.New("config: store.dsn is required by the postgres driver"))
		}
	}

	return errors.Join(errs...)
}

// fieldError renders a validator error with the YAML path of the field,
// e.g. "discord.managed_categories[0]".
func fieldError(fe validator.FieldError) error {
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	if fe.Param() != "" {
		return fmt.Errorf("config: %s: failed %q (%s)", path, fe.Tag(), fe.Param())
	}
	return fmt.Errorf("config: %s: failed %q", path, fe.Tag())
}
