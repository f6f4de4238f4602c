package trace

import "strconv"

// PathSeg is one segment of a dotted json_path: either a map key or a
// list index.
type PathSeg struct {
	Key     string
	Index   int
	IsIndex bool
}

// Key builds a map-key PathSeg.
func Key(k string) PathSeg { return PathSeg{Key: k} }

// Idx builds a list-index PathSeg.
func Idx(i int) PathSeg { return PathSeg{Index: i, IsIndex: true} }

func (s PathSeg) String() string {
	if s.IsIndex {
		return strconv.Itoa(s.Index)
	}
	return s.Key
}

// Range localizes a policy violation to a specific sub-object of the
// trace: the event it refers to, a dotted json_path into that event, and
// an optional character span into the string found at that path.
type Range struct {
	ObjectID EventID
	JSONPath string
	Start    *int
	End      *int
}

// NewRange builds a Range from an event and its path segments, using the
// event's Index as the leading path segment, per the dotted-path
// convention (e.g. "3.function.arguments.q").
func NewRange(e *Event, segs ...PathSeg) Range {
	path := strconv.Itoa(e.Index)
	for _, s := range segs {
		path += "." + s.String()
	}
	return Range{ObjectID: e.ID, JSONPath: path}
}

// WithSpan returns a copy of the range with a character span attached.
func (r Range) WithSpan(start, end int) Range {
	r.Start = &start
	r.End = &end
	return r
}
