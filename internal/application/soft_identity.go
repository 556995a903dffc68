package application

import (
	"crypto/md5"
	"encoding/hex"
)

// DeriveParticipantID returns the stable identifier used for participants that did not
// authenticate. The same name on the same meeting always maps to the same record.
func DeriveParticipantID(meetingID, userName string) string {
	sum := md5.Sum([]byte(meetingID + "_" + userName))
	return hex.EncodeToString(sum[:])[:16]
}
