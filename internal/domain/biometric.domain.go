package domain

import "time"

// Action is the purpose a challenge was issued for.
type Action string

const (
	ActionEnroll Action = "ENROLL"
	ActionVerify Action = "VERIFY"
)

func (a Action) Valid() bool {
	return a == ActionEnroll || a == ActionVerify
}

// Result is the outcome recorded on a RecognitionEvent.
type Result string

const (
	ResultSuccess    Result = "SUCCESS"
	ResultFailure    Result = "FAILURE"
	ResultSuspicious Result = "SUSPICIOUS"
)

// Liveness actions the analyzer knows how to score.
const (
	LivenessBlink     = "blink"
	LivenessSmile     = "smile"
	LivenessTurnLeft  = "turn_left"
	LivenessTurnRight = "turn_right"
)

var LivenessCandidates = []string{LivenessBlink, LivenessSmile, LivenessTurnLeft, LivenessTurnRight}

// KeyTypeBiometrics is the only envelope key type accepted on capture payloads.
const KeyTypeBiometrics = "biometrics"

// Challenge is a single-use, nonce-bound permission to submit one capture.
type Challenge struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Nonce           string     `json:"-"`
	Action          Action     `json:"action"`
	LivenessActions []string   `json:"liveness_actions"`
	ExpiresAt       time.Time  `json:"expires_at"`
	UsedAt          *time.Time `json:"used_at,omitempty"`
	Attempts        int        `json:"attempts"`
	IPAddress       string     `json:"ip_address,omitempty"`
	UserAgent       string     `json:"user_agent,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// FaceTemplate is the stored enrolment for one user. Embeddings and centroid
// are ciphertexts; they are only decrypted into a DecryptedTemplate.
type FaceTemplate struct {
	UserID              string    `json:"user_id"`
	EncryptedEmbeddings string    `json:"-"`
	EncryptedCentroid   string    `json:"-"`
	EmbeddingDim        int       `json:"embedding_dim"`
	TemplateCount       int       `json:"template_count"`
	LastConfidence      *float64  `json:"last_confidence,omitempty"`
	Version             int64     `json:"version"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type DecryptedTemplate struct {
	UserID       string
	Embeddings   [][]float64
	Centroid     []float64
	EmbeddingDim int
	Version      int64
}

// RecognitionEvent is the audit record of one enroll or verify attempt.
// Only the verification_used_at mark is ever written after insert.
type RecognitionEvent struct {
	ID                    string         `json:"id"`
	UserID                string         `json:"user_id"`
	Type                  Action         `json:"type"`
	Result                Result         `json:"result"`
	Reason                string         `json:"reason,omitempty"`
	Score                 *float64       `json:"score,omitempty"`
	Threshold             *float64       `json:"threshold,omitempty"`
	VerificationTokenHash *string        `json:"-"`
	VerificationExpiresAt *time.Time     `json:"verification_expires_at,omitempty"`
	VerificationUsedAt    *time.Time     `json:"verification_used_at,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	IPAddress             string         `json:"ip_address,omitempty"`
	UserAgent             string         `json:"user_agent,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
}

// IsFailure reports whether the event counts toward lockout.
func (e *RecognitionEvent) IsFailure() bool {
	return e.Result == ResultFailure || e.Result == ResultSuspicious
}

// ChallengeResponse is returned to the client when a challenge is issued.
type ChallengeResponse struct {
	ChallengeID     string    `json:"challengeId"`
	Nonce           string    `json:"nonce"`
	ExpiresAt       time.Time `json:"expiresAt"`
	LivenessActions []string  `json:"livenessActions"`
	PublicKey       string    `json:"publicKey"`
	KeyType         string    `json:"keyType"`
	Version         int       `json:"version"`
}

type EnrollResponse struct {
	OK            bool `json:"ok"`
	TemplateCount int  `json:"templateCount"`
	EmbeddingDim  int  `json:"embeddingDim"`
}

type VerifyResponse struct {
	OK                bool      `json:"ok"`
	VerificationToken string    `json:"verificationToken"`
	ExpiresAt         time.Time `json:"expiresAt"`
	Score             float64   `json:"score"`
}

type StatusResponse struct {
	Enrolled       bool       `json:"enrolled"`
	TemplateCount  int        `json:"templateCount"`
	EmbeddingDim   int        `json:"embeddingDim"`
	LastConfidence *float64   `json:"lastConfidence,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
	LockedUntil    *time.Time `json:"lockedUntil,omitempty"`
}
