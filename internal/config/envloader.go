package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/aeppert/bro-plugin-instrumentation/internal/constants"
)

// LoadFromEnv overrides cfg fields from environment variables.
//
// The variable name is constants.EnvPrefix, then the envPrefix tag of every
// enclosing struct field, then the field's env tag; for example
// INSTRUMENT_COLLECTION_TIMER. Empty variables are ignored.
func LoadFromEnv(cfg interface{}) error {
	return loadFromEnv(reflect.ValueOf(cfg), constants.EnvPrefix)
}

func loadFromEnv(v reflect.Value, prefix string) error {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := loadFromEnv(field, prefix+fieldType.Tag.Get("envPrefix")); err != nil {
				return err
			}
			continue
		}

		tag := fieldType.Tag.Get("env")
		if tag == "" {
			continue
		}
		name := prefix + tag

		value := os.Getenv(name)
		if value == "" {
			continue
		}
		if err := setFieldValue(field, value, fieldType.Name, name); err != nil {
			return err
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string, fieldName string, envVar string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration for %s (%s): %w", fieldName, envVar, err)
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer for %s (%s): %w", fieldName, envVar, err)
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer for %s (%s): %w", fieldName, envVar, err)
		}
		field.SetUint(n)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s (%s): %w", fieldName, envVar, err)
		}
		field.SetBool(b)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid float for %s (%s): %w", fieldName, envVar, err)
		}
		field.SetFloat(f)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type for %s (%s)", fieldName, envVar)
		}
		parts := strings.Split(value, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		field.Set(reflect.ValueOf(parts))

	default:
		return fmt.Errorf("unsupported type %s for %s (%s)", field.Kind(), fieldName, envVar)
	}

	return nil
}
