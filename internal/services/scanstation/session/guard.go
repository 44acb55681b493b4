package session

import "github.com/louisbranch/attendmark/internal/attendance/token"

// Accept is the local format guard. It only checks that raw looks like an
// attendance credential; integrity and scope are left to the service.
func Accept(raw string) (token.Fields, bool) {
	fields, err := token.Decode(raw)
	if err != nil {
		return token.Fields{}, false
	}
	return fields, true
}
