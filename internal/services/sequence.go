package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LastNumberReader reads the most recent delivery number from the ledger
type LastNumberReader interface {
	LastDeliveryNumber(ctx context.Context) (string, error)
}

// Delivery numbers end in a 4-digit running sequence; the suffix is the only
// part the sequencer cares about.
var sequenceSuffix = regexp.MustCompile(`(\d{4})$`)

// DeliverySequencer derives the running delivery counter from the most recent
// delivery number in the ledger. Two sessions reading the same counter can
// still collide; the unique index on delivery_number plus the committer's
// retry-on-conflict closes that gap.
type DeliverySequencer struct {
	deliveries LastNumberReader
	prefix     string
}

// NewDeliverySequencer creates a new sequencer
func NewDeliverySequencer(deliveries LastNumberReader, prefix string) *DeliverySequencer {
	if prefix == "" {
		prefix = "ENT"
	}
	return &DeliverySequencer{
		deliveries: deliveries,
		prefix:     prefix,
	}
}

// LastSequence returns the current value of the running counter: the parsed
// 4-digit suffix of the most recent delivery number across all time, or 0
// when no delivery exists or the suffix cannot be parsed. Callers increment
// per delivery created within one commit batch.
func (s *DeliverySequencer) LastSequence(ctx context.Context) (int, error) {
	number, err := s.deliveries.LastDeliveryNumber(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read last delivery number")
	}
	if number == "" {
		return 0, nil
	}

	match := sequenceSuffix.FindStringSubmatch(number)
	if match == nil {
		log.Warn().Str("delivery_number", number).Msg("Last delivery number has no numeric suffix, counter restarts at 0")
		return 0, nil
	}

	seq, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, nil
	}
	return seq, nil
}

// FormatDeliveryNumber builds a delivery number for a production day and a
// counter value, e.g. ENT-20240115-0007.
func (s *DeliverySequencer) FormatDeliveryNumber(day time.Time, sequence int) string {
	return fmt.Sprintf("%s-%s-%04d", s.prefix, day.UTC().Format("20060102"), sequence)
}
