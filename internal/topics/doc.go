// Package topics maps between FSMosquito broker topics and structured requests.
//
// Egress topics are produced with Format from the template constants.
// Ingress topics are matched by a Router compiled for one client id:
//
//	router := topics.NewRouter("alice")
//	route, ok := router.Match("fsm/client/alice/simconnect/set_data/1/THROTTLE_LEVER")
//	// route.Kind == topics.KindSetValue
//	// route.ObjectID() == 1, route.DatumName == "THROTTLE LEVER"
//
// Each {n} placeholder matches exactly one path segment. Segment values are
// taken by position after splitting on "/".
package topics
