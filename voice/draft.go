package voice

import "sync"

// Draft is the user's pending input line. Transcribed speech is appended to
// it, never replacing what was typed.
type Draft struct {
	mu   sync.Mutex
	text string
}

// Append adds text, separated by one space when the draft is non-empty
func (d *Draft) Append(text string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if text == "" {
		return d.text
	}
	if d.text == "" {
		d.text = text
	} else {
		d.text += " " + text
	}
	return d.text
}

// Set replaces the draft
func (d *Draft) Set(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
}

// Take returns the draft and clears it
func (d *Draft) Take() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	text := d.text
	d.text = ""
	return text
}

// String returns the current draft
func (d *Draft) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}
