// Package email defines the parsed notification model handed from the
// message extractor to a deliverer.
package email

// Notification is the structured result of parsing one transferred message.
// An empty field means the value was absent in the source message.
type Notification struct {
	// Sender is the envelope sender, or the first From header address when
	// the reverse-path was null.
	Sender string

	// Subject is the decoded Subject header.
	Subject string

	// Body is the plain-text body of the message.
	Body string
}
