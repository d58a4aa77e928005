package gateway

import "github.com/accord-chat/accord/internal/events"

// validateIntents checks every requested intent against the known set and
// returns the session's intent set. The second return is the first unknown
// intent, empty when all validate. Privileged intents (members, presences,
// message_content) are granted unconditionally; grants are configured per
// application out of band.
func validateIntents(requested []string) (map[string]bool, string) {
	set := make(map[string]bool, len(requested))
	for _, intent := range requested {
		if !events.KnownIntents[intent] {
			return nil, intent
		}
		set[intent] = true
	}
	return set, ""
}
