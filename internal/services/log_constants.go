package services

const (
	LogActionEligibilityLoad  = "ELIGIBILITY_LOAD"
	LogActionClaimLogLoad     = "CLAIM_LOG_LOAD"
	LogActionClaim            = "CLAIM"
	LogActionEligibilityFlush = "ELIGIBILITY_FLUSH"
	LogActionClaimLogFlush    = "CLAIM_LOG_FLUSH"
	LogActionJournalReplay    = "JOURNAL_REPLAY"
	LogActionAdminAuth        = "ADMIN_AUTH"
	LogOutcomeSuccess         = "SUCCESS"
	LogOutcomeFail            = "FAIL"
)
