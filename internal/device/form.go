package device

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"iot-ledger-backend/internal/model"
)

var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)

// Form is the registration input of a new device.
type Form struct {
	Name        string `json:"name" form:"name" validate:"min=2"`
	DeviceType  string `json:"deviceType" form:"deviceType" validate:"required"`
	Location    string `json:"location" form:"location" validate:"required"`
	Description string `json:"description" form:"description"`
	MACAddress  string `json:"macAddress" form:"macAddress" validate:"macaddr"`
	Firmware    string `json:"firmware" form:"firmware" validate:"required"`
}

var formMessages = map[string]string{
	"name":       "Device name must be at least 2 characters",
	"deviceType": "Device type is required",
	"location":   "Location is required",
	"macAddress": "Invalid MAC address format (e.g. AA:BB:CC:DD:EE:FF)",
	"firmware":   "Firmware version is required",
}

// ValidationError maps each invalid field to a human-readable message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %s", name, e.Fields[name])
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

// ValidMAC reports whether s is six hex octets separated by ':' or '-'.
func ValidMAC(s string) bool {
	return macPattern.MatchString(s)
}

// RegisterRules adds the custom validation tags used by request types.
func RegisterRules(v *validator.Validate) error {
	return v.RegisterValidation("macaddr", func(fl validator.FieldLevel) bool {
		return ValidMAC(fl.Field().String())
	})
}

// JSONFieldName reports struct fields by their JSON name in validation
// errors.
func JSONFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(JSONFieldName)
	if err := RegisterRules(v); err != nil {
		panic(err)
	}
	return v
}

// Validate checks every field and reports all failures at once.
func (f Form) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if msg, ok := formMessages[fe.Field()]; ok {
			fields[fe.Field()] = msg
		} else {
			fields[fe.Field()] = fe.Error()
		}
	}
	return &ValidationError{Fields: fields}
}

// Metadata builds the document published for the device.
func (f Form) Metadata(now time.Time) model.DeviceMetadata {
	return model.DeviceMetadata{
		Name:            f.Name,
		Type:            f.DeviceType,
		Location:        f.Location,
		Description:     f.Description,
		MACAddress:      f.MACAddress,
		FirmwareVersion: f.Firmware,
		CreatedAt:       now.UnixMilli(),
	}
}
