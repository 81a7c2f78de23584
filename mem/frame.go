package mem

// Frame identifies one physical frame by its kernel-visible address.
// This module never runs against real physical memory, so a Frame is
// an opaque handle minted by a frame.Pool rather than a literal
// address, but it is carried through every interface exactly where a
// kernel-visible address of the physical frame would be.
type Frame uint64

// NoFrame is the zero value, meaning "not resident".
const NoFrame Frame = 0
