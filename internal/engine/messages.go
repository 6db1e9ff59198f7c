package engine

// User-facing reply templates. The terminal states of a search request
// (created, already queued, joined group, timed out, not understood) are
// mutually exclusive and each has exactly one template.
const (
	msgNoGames = "**No games are currently in the database!\n" +
		"Start playing some games to make the database better**"
	msgGameListHeader = "**Available games**\n"

	msgNoMatchingGame = "No game matching `%s` was found."
	msgSearchCreated  = "Your request to play `%s` has been noted. You will be matched as soon as more players queue up."
	msgAlreadyQueued  = "You are already queued for `%s`."
	msgJoinedGroup    = "You have been matched into a group for `%s`! Head over to <#%s>."
	msgTimedOut       = "Time ran out, please try again."
	msgNotUnderstood  = "Sorry, I didn't understand that. Please try again."

	msgDisambiguate = "Multiple games match `%s`. Reply with the number of the game you meant within %d seconds:\n"
	msgOfferJoin    = "There is already an open group for `%s`. Reply `yes` within %d seconds to join it, or anything else to start a fresh search."

	msgNoActiveSearches = "You have no active searches."
	msgSearchesStopped  = "Cancelled %d of your searches."
	msgSearchStopped    = "Your search for `%s` has been cancelled."

	msgWhoPlaysNone   = "Nobody has played `%s` yet."
	msgWhoPlaysHeader = "**The following users have played `%s`:**\n"

	msgPurgeConfirm   = "This will cancel **every** active search. Reply `yes` within %d seconds to confirm."
	msgPurgeCancelled = "Purge cancelled."
	msgPurgeDone      = "Purged %d active searches."
	msgPurgeAnnounce  = "**All active game searches have been purged by an administrator.**"

	msgGenericError = "An error occurred, please contact the owner. Reference code: `%s`"
)
