package commsutil

import (
	"fmt"
	"strings"
)

// Subject roots of the device manager protocol.
const (
	SubjectRoot      = "dm"
	SubjectReplyRoot = "dm.reply"
	inboxPrefix      = "_INBOX."
)

// safeToken turns an instance name such as "zigbee.0" into a single subject token.
func safeToken(s string) string {
	return strings.ReplaceAll(s, ".", "_")
}

// CommandSubject is the subject an instance receives GUI commands on.
func CommandSubject(instance string) string {
	return fmt.Sprintf("%s.%s.commands", SubjectRoot, safeToken(instance))
}

// StateSubject is the subject state changes of an instance are published on.
func StateSubject(instance string) string {
	return fmt.Sprintf("%s.%s.state", SubjectRoot, safeToken(instance))
}

// ReplySubject maps a sender name to the subject its replies are published on. Inbox
// subjects are used as they are.
func ReplySubject(recipient string) string {
	if strings.HasPrefix(recipient, inboxPrefix) {
		return recipient
	}
	return fmt.Sprintf("%s.%s", SubjectReplyRoot, safeToken(recipient))
}
