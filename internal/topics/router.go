package topics

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the request an inbound topic carries.
type Kind int

// Inbound request kinds, in routing priority order.
const (
	KindReportStatus Kind = iota + 1
	KindSubscribe
	KindSetValue
)

// String returns a readable name for logs.
func (k Kind) String() string {
	switch k {
	case KindReportStatus:
		return "report_status"
	case KindSubscribe:
		return "subscribe"
	case KindSetValue:
		return "set_value"
	default:
		return "unknown"
	}
}

// Route is the structured form of a matched inbound topic.
type Route struct {
	Kind  Kind
	Topic string

	// Directed is true for a status request addressed to this client only.
	Directed bool

	// ObjectSegment and DatumName are set for KindSetValue.
	// DatumName has underscores turned back into spaces.
	ObjectSegment string
	DatumName     string
}

// ObjectID parses ObjectSegment as an unsigned object id.
// An absent or unparsable segment yields 0, the user aircraft.
func (r Route) ObjectID() uint32 {
	id, err := strconv.ParseUint(r.ObjectSegment, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(id)
}

// route is one inbound template compiled for a specific client id.
type route struct {
	kind     Kind
	directed bool
	template string // formatted with the client id
	pattern  *regexp.Regexp
	segments map[int]int // placeholder number -> split index
}

// Router matches inbound topics against the ingress templates of one client.
//
// Routes are tried in a fixed order: broadcast status request, directed
// status request, subscribe request, set-value request. The first
// structural match wins. Router is immutable and safe for concurrent use.
type Router struct {
	clientID string
	routes   []route
}

// NewRouter compiles the ingress templates for clientID.
func NewRouter(clientID string) *Router {
	r := &Router{clientID: clientID}
	r.routes = []route{
		compile(KindReportStatus, false, ReportStatusBroadcast, clientID),
		compile(KindReportStatus, true, ReportStatus, clientID),
		compile(KindSubscribe, false, Subscribe, clientID),
		compile(KindSetValue, false, SetData, clientID),
	}
	return r
}

func compile(kind Kind, directed bool, template, clientID string) route {
	formatted := Format(template, clientID)
	parts := strings.Split(formatted, "/")

	expr := make([]string, len(parts))
	segments := make(map[int]int)
	for i, p := range parts {
		if isPlaceholder(p) {
			n, _ := strconv.Atoi(p[1 : len(p)-1])
			segments[n] = i
			expr[i] = `([^/]+)`
			continue
		}
		expr[i] = regexp.QuoteMeta(p)
	}

	return route{
		kind:     kind,
		directed: directed,
		template: formatted,
		pattern:  regexp.MustCompile("^" + strings.Join(expr, "/") + "$"),
		segments: segments,
	}
}

// ClientID returns the client id the router was compiled for.
func (r *Router) ClientID() string {
	return r.clientID
}

// Match routes topic to a request. ok is false when no template matches.
func (r *Router) Match(topic string) (Route, bool) {
	for _, rt := range r.routes {
		if !rt.pattern.MatchString(topic) {
			continue
		}

		m := Route{Kind: rt.kind, Topic: topic, Directed: rt.directed}
		if rt.kind == KindSetValue {
			parts := strings.Split(topic, "/")
			m.ObjectSegment = parts[rt.segments[1]]
			m.DatumName = DenormalizeDatumName(parts[rt.segments[2]])
		}
		return m, true
	}
	return Route{}, false
}

// Filters returns the MQTT subscription filters covering every route,
// in routing order.
func (r *Router) Filters() []string {
	filters := make([]string, len(r.routes))
	for i, rt := range r.routes {
		filters[i] = Filter(rt.template)
	}
	return filters
}
