package auth

// Scopes checked by the study API.
const (
	ScopeStudyRead  = "study:read"
	ScopeStudyWrite = "study:write"
)

// AllScopes grants every scope; used for the local single-device identity.
func AllScopes() map[string]struct{} {
	return map[string]struct{}{
		ScopeStudyRead:  {},
		ScopeStudyWrite: {},
	}
}
