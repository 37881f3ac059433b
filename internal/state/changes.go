package state

import "slices"

// ChangeSet describes what an operation on the Store changed, so the
// presentation layer can redraw incrementally.
type ChangeSet struct {
	// Windows whose lines, read marker or counters changed.
	Windows []WindowKey
	// Connections whose nickname, channels or membership changed.
	Connections []string
	// WindowList is set when windows were added or removed.
	WindowList bool
	// Active is set when the active window pointer moved.
	Active bool
	// Reloaded is set when the whole Store was replaced or discarded.
	Reloaded bool
	// Highlights are nick-flagged lines that landed in inactive, unmuted windows.
	Highlights []Highlight
	// Anomalies are non-fatal problems met while applying updates.
	Anomalies []error
}

// Highlight is a line that mentions the user's nickname.
type Highlight struct {
	Key  WindowKey
	Line Line
	Args []string // payload without a leading subtype name
}

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool {
	return len(c.Windows) == 0 && len(c.Connections) == 0 && !c.WindowList &&
		!c.Active && !c.Reloaded && len(c.Highlights) == 0 && len(c.Anomalies) == 0
}

// TouchesWindow reports whether a redraw of key is needed.
func (c ChangeSet) TouchesWindow(key WindowKey) bool {
	return c.Reloaded || slices.Contains(c.Windows, key)
}

// Merge folds other into c.
func (c *ChangeSet) Merge(other ChangeSet) {
	for _, k := range other.Windows {
		c.addWindow(k)
	}
	for _, p := range other.Connections {
		c.addConnection(p)
	}
	c.WindowList = c.WindowList || other.WindowList
	c.Active = c.Active || other.Active
	c.Reloaded = c.Reloaded || other.Reloaded
	c.Highlights = append(c.Highlights, other.Highlights...)
	c.Anomalies = append(c.Anomalies, other.Anomalies...)
}

func (c *ChangeSet) addWindow(key WindowKey) {
	if !slices.Contains(c.Windows, key) {
		c.Windows = append(c.Windows, key)
	}
}

func (c *ChangeSet) addConnection(profile string) {
	if !slices.Contains(c.Connections, profile) {
		c.Connections = append(c.Connections, profile)
	}
}

func (c *ChangeSet) anomaly(err error) {
	c.Anomalies = append(c.Anomalies, err)
}
