package ingestion

import (
	"fmt"
	"strings"

	"RangeLedger/internal/errs"
	"RangeLedger/internal/event"
)

// CommandSubjectPrefix is the root of every inbound command subject:
// rangebet.cmd.<command>.<market>, e.g. rangebet.cmd.buy_tokens.7.
const CommandSubjectPrefix = "rangebet.cmd."

// CommandSubject builds the inbound subject for a command. Program-level
// commands without a market use "program" as the last token.
func CommandSubject(et event.EventType, marketID *uint64) string {
	if marketID == nil {
		return CommandSubjectPrefix + et.Token() + ".program"
	}
	return fmt.Sprintf("%s%s.%d", CommandSubjectPrefix, et.Token(), *marketID)
}

// CommandFromSubject resolves the command type carried by a NATS subject.
func CommandFromSubject(subject string) (event.EventType, error) {
	rest, ok := strings.CutPrefix(subject, CommandSubjectPrefix)
	if !ok {
		return event.EventTypeUnknown, fmt.Errorf("%w: subject %q is not a command subject", errs.ErrInvalidCommand, subject)
	}
	token, _, _ := strings.Cut(rest, ".")
	et, ok := event.ParseEventType(token)
	if !ok {
		return event.EventTypeUnknown, fmt.Errorf("%w: unknown command %q in subject %q", errs.ErrInvalidCommand, token, subject)
	}
	return et, nil
}

// ParseRawEvent converts a RawEvent into a typed command. The shell validates
// and parses before anything reaches the deterministic core.
func ParseRawEvent(raw RawEvent) (event.Event, error) {
	et, err := CommandFromSubject(raw.Subject)
	if err != nil {
		return nil, err
	}
	evt, err := event.Decode(et.Token(), raw.Data)
	if err != nil {
		return nil, err
	}
	if err := event.Validate(evt); err != nil {
		return nil, err
	}
	return evt, nil
}
