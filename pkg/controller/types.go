package controller

import "fmt"

// ActionType is the parsed controller kind an action dispatches to. The
// string form appears in persisted action records; it is parsed once at the
// edges of the system.
type ActionType string

// Action type constants.
const (
	ActionTypeRemote       ActionType = "remote"
	ActionTypeWeb          ActionType = "web"
	ActionTypePower        ActionType = "power"
	ActionTypeVerification ActionType = "verification"
	ActionTypeAV           ActionType = "av"
	ActionTypeDesktop      ActionType = "desktop"
)

var actionTypes = map[string]ActionType{
	string(ActionTypeRemote):       ActionTypeRemote,
	string(ActionTypeWeb):          ActionTypeWeb,
	string(ActionTypePower):        ActionTypePower,
	string(ActionTypeVerification): ActionTypeVerification,
	string(ActionTypeAV):           ActionTypeAV,
	string(ActionTypeDesktop):      ActionTypeDesktop,
}

// ParseActionType parses the persisted string form.
func ParseActionType(s string) (ActionType, error) {
	if t, ok := actionTypes[s]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown action type %q", s)
}

// VerificationType is the parsed verification kind.
type VerificationType string

// Verification type constants.
const (
	VerificationTypeImage  VerificationType = "image"
	VerificationTypeText   VerificationType = "text"
	VerificationTypeADB    VerificationType = "adb"
	VerificationTypeAppium VerificationType = "appium"
	VerificationTypeAudio  VerificationType = "audio"
	VerificationTypeVideo  VerificationType = "video"
	VerificationTypeWeb    VerificationType = "web"
)

var verificationTypes = map[string]VerificationType{
	string(VerificationTypeImage):  VerificationTypeImage,
	string(VerificationTypeText):   VerificationTypeText,
	string(VerificationTypeADB):    VerificationTypeADB,
	string(VerificationTypeAppium): VerificationTypeAppium,
	string(VerificationTypeAudio):  VerificationTypeAudio,
	string(VerificationTypeVideo):  VerificationTypeVideo,
	string(VerificationTypeWeb):    VerificationTypeWeb,
}

// ParseVerificationType parses the persisted string form.
func ParseVerificationType(s string) (VerificationType, error) {
	if t, ok := verificationTypes[s]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown verification type %q", s)
}

// requiredParams is the per-type minimal-parameters contract. Verifications
// failing it are filtered before execution.
var requiredParams = map[VerificationType][]string{
	VerificationTypeImage: {"image_path"},
	VerificationTypeText:  {"text"},
	VerificationTypeADB:   {"search_term"},
}

// MissingParams returns the names of required params absent (or empty) from
// the given param map for this verification type.
func (t VerificationType) MissingParams(params map[string]any) []string {
	var missing []string
	for _, name := range requiredParams[t] {
		v, ok := params[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
