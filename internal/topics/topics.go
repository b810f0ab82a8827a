package topics

import (
	"fmt"
	"strings"
	"unicode"
)

// Topic templates. Placeholders are positional: {0} is the client id,
// {1} the simulation object id and {2} the normalised datum name.
const (
	// ReportStatusBroadcast asks every client to report its SimConnect status (ingress).
	ReportStatusBroadcast = "fsm/client/all/simconnect/report_status"

	// ReportStatus asks one client to report its SimConnect status (ingress).
	ReportStatus = "fsm/client/{0}/simconnect/report_status"

	// Subscribe carries a JSON array of datums to start polling (ingress).
	Subscribe = "fsm/client/{0}/simconnect/subscribe"

	// SetData sets one datum on one simulation object (ingress).
	SetData = "fsm/client/{0}/simconnect/set_data/{1}/{2}"

	// ClientStatus is the retained broker connection status (egress).
	ClientStatus = "fsm/client/{0}/status"

	// SimConnectStatus reports whether the simulation host is reachable (egress).
	SimConnectStatus = "fsm/client/{0}/simconnect/status"

	// VariableValue is the retained value of one datum (egress).
	VariableValue = "fsm/client/{0}/v/{1}/{2}"
)

// Status payloads published on ClientStatus and SimConnectStatus.
const (
	StatusConnected    = "Connected"
	StatusDisconnected = "Disconnected"
	StatusOpened       = "Opened"
	StatusClosed       = "Closed"
)

// Format substitutes args into template in order: {0} receives args[0],
// {1} receives args[1] and so on. Placeholders without an argument are left
// untouched.
//
//	topics.Format(topics.VariableValue, "alice", 0, "plane_altitude")
//	// Returns: "fsm/client/alice/v/0/plane_altitude"
func Format(template string, args ...any) string {
	if len(args) == 0 {
		return template
	}
	pairs := make([]string, 0, len(args)*2)
	for i, a := range args {
		pairs = append(pairs, placeholder(i), fmt.Sprint(a))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// NormalizeDatumName lower-cases a datum name and replaces every whitespace
// character with an underscore so it forms a single broker-safe segment.
//
// Example: "PLANE ALTITUDE" -> "plane_altitude"
func NormalizeDatumName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return unicode.ToLower(r)
	}, name)
}

// DenormalizeDatumName turns a topic segment back into a datum name by
// replacing underscores with spaces. Case is preserved.
//
// Example: "THROTTLE_LEVER" -> "THROTTLE LEVER"
func DenormalizeDatumName(segment string) string {
	return strings.ReplaceAll(segment, "_", " ")
}

// Filter converts a template already formatted with the client id into an
// MQTT subscription filter, turning each remaining placeholder into "+".
//
// Example: "fsm/client/alice/simconnect/set_data/{1}/{2}" ->
// "fsm/client/alice/simconnect/set_data/+/+"
func Filter(template string) string {
	segments := strings.Split(template, "/")
	for i, s := range segments {
		if isPlaceholder(s) {
			segments[i] = "+"
		}
	}
	return strings.Join(segments, "/")
}

func placeholder(i int) string {
	return fmt.Sprintf("{%d}", i)
}

func isPlaceholder(segment string) bool {
	if len(segment) < 3 || segment[0] != '{' || segment[len(segment)-1] != '}' {
		return false
	}
	for _, r := range segment[1 : len(segment)-1] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
