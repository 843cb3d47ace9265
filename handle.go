package mtcore

// Handle is the opaque two-word reference every mtcore entity is
// addressed by: a slot id plus the generation tag that was current when
// the handle was minted. A handle is valid iff the addressed slot's
// current tag still matches — once a slot is released and reused, every
// handle minted before the release is permanently stale (slab.Pool
// bumps the tag on every Release, so tags never repeat for a given id
// across a process lifetime, short of uint32 wraparound).
type Handle struct {
	id  uint32
	tag uint32
}

// Valid reports whether h is not the zero Handle. It does not check
// liveness against any pool — use the owning table's lookup for that.
func (h Handle) Valid() bool { return h.id != 0 }

// JobHandle, ActionHandle, TaskHandle, GroupHandle and QueueHandle are
// distinct types over the same underlying Handle so the compiler
// rejects passing, say, a GroupHandle where a TaskHandle is expected.
type (
	JobHandle    struct{ h Handle }
	ActionHandle struct{ h Handle }
	TaskHandle   struct{ h Handle }
	GroupHandle  struct{ h Handle }
	QueueHandle  struct{ h Handle }
)

func (h JobHandle) Valid() bool    { return h.h.Valid() }
func (h ActionHandle) Valid() bool { return h.h.Valid() }
func (h TaskHandle) Valid() bool   { return h.h.Valid() }
func (h GroupHandle) Valid() bool  { return h.h.Valid() }
func (h QueueHandle) Valid() bool  { return h.h.Valid() }
