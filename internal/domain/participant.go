package domain

type ParticipantID string

// Participant is one admitted connection within a room. Name is the encrypted
// display-name blob received at admission; it is never decrypted server-side.
type Participant struct {
	ID   ParticipantID
	Name string
}
