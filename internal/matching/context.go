package matching

// ApplicantContext is what the caller knows about the applicant. It is one of NoIdentity,
// ProfileContext or IntentContext and is dispatched once in the orchestrator.
type ApplicantContext interface {
	isApplicantContext()
}

// NoIdentity is an anonymous visitor.
type NoIdentity struct{}

// ProfileContext is an identified applicant with only a coarse profile.
type ProfileContext struct {
	Profile CoarseProfile
}

// IntentContext is an identified applicant with a full funding intent.
type IntentContext struct {
	Intent ApplicantIntent
}

func (NoIdentity) isApplicantContext()     {}
func (ProfileContext) isApplicantContext() {}
func (IntentContext) isApplicantContext()  {}

// ContextFor builds the richest context available from optional inputs. The applicant is
// identified by userID, or failing that by the userId carried in the intent or profile;
// without any identity the visitor is anonymous and the inline records are ignored.
func ContextFor(userID string, intent *ApplicantIntent, profile *CoarseProfile) ApplicantContext {
	if userID == "" && intent != nil {
		userID = intent.UserID
	}
	if userID == "" && profile != nil {
		userID = profile.UserID
	}

	switch {
	case userID == "":
		return NoIdentity{}
	case intent != nil:
		return IntentContext{Intent: *intent}
	case profile != nil:
		return ProfileContext{Profile: *profile}
	default:
		return ProfileContext{Profile: CoarseProfile{UserID: userID}}
	}
}
