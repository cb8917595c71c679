package validation

import (
	"strings"

	domainErrors "upilink/internal/errors"
	"upilink/internal/models"
)

// ValidateTimerDuration checks the order validity window in minutes.
func ValidateTimerDuration(minutes int) error {
	if minutes < models.MinTimerDuration || minutes > models.MaxTimerDuration {
		return domainErrors.ErrInvalidTimerDuration
	}
	return nil
}

// ValidateSettingsPatch checks every field present in patch and normalizes
// the static address in place. An empty static address means "clear".
func ValidateSettingsPatch(patch *models.SettingsPatch) error {
	if patch.TimerDuration != nil {
		if err := ValidateTimerDuration(*patch.TimerDuration); err != nil {
			return err
		}
	}

	if patch.StaticUPIID != nil {
		vpa := NormalizeVPA(*patch.StaticUPIID)
		if vpa == "" {
			patch.StaticUPIID = nil
			patch.ClearStaticUPIID = true
		} else {
			if err := ValidateVPA(vpa); err != nil {
				return domainErrors.ErrInvalidStaticUPIID
			}
			patch.StaticUPIID = &vpa
		}
	}

	if patch.EnabledUPIApps != nil {
		apps := make(map[string]bool, len(patch.EnabledUPIApps))
		for app, enabled := range patch.EnabledUPIApps {
			name := strings.ToLower(strings.TrimSpace(app))
			if !models.IsKnownUPIApp(name) {
				return domainErrors.ErrUnknownUPIApp.WithMessage("unknown UPI app %q", app)
			}
			apps[name] = enabled
		}
		patch.EnabledUPIApps = apps
	}
	return nil
}
