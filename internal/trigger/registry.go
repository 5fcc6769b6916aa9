package trigger

import "encoding/gob"

// init registers every shipped trigger's concrete type with encoding/gob
// so that codec.GobCodec can encode/decode a value typed as the Trigger
// interface, such as the blob kept in Schedule.SerializedTrigger
// (spec §3: "serialized_data is
// authoritative for trigger state").
func init() {
	gob.Register(&CronTrigger{})
	gob.Register(&IntervalTrigger{})
	gob.Register(&DateTrigger{})
}
