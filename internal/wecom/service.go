package wecom

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kkkcccliang/wecom-chatgpt-app/internal/metrics"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/models"
)

// Service implements the secure envelope protocol for a single configured
// corp and agent: signature verification, envelope decryption and the
// passive-reply encryption used in the opposite direction.
type Service struct {
	token  string
	corpID string
	cipher *Cipher
	logger zerolog.Logger
}

// NewService validates the crypto configuration eagerly and returns a
// Service. A bad EncodingAESKey fails here, before any traffic is served.
func NewService(token, encodingAESKey, corpID string, logger zerolog.Logger) (*Service, error) {
	c, err := NewCipher(encodingAESKey, corpID)
	if err != nil {
		return nil, err
	}
	return &Service{
		token:  token,
		corpID: corpID,
		cipher: c,
		logger: logger.With().Str("component", "wecom").Logger(),
	}, nil
}

// VerifyURL handles the endpoint verification handshake: checks the
// signature over the echostr ciphertext, decrypts it and verifies the
// embedded corp id. Returns the decrypted plaintext to echo back.
func (s *Service) VerifyURL(signature, timestamp, nonce, echostr string) (string, error) {
	if !VerifySignature(signature, s.token, timestamp, nonce, echostr) {
		metrics.SignatureFailures.Inc()
		return "", ErrSignatureMismatch
	}
	plain, id, err := s.cipher.Decrypt(echostr)
	if err != nil {
		return "", err
	}
	if id != s.corpID {
		metrics.CorpIDMismatches.Inc()
		return "", ErrCorpIDMismatch
	}
	return plain, nil
}

// DecryptMessage authenticates and decrypts an inbound webhook body. The
// signature is verified over the extracted Encrypt field before any
// decryption is attempted; the corp id embedded in the ciphertext is a
// second check independent of the signature.
func (s *Service) DecryptMessage(body []byte, signature, timestamp, nonce string) (models.Message, error) {
	ciphertext, err := ParseOuterEnvelope(body)
	if err != nil {
		return models.Message{}, err
	}
	if !VerifySignature(signature, s.token, timestamp, nonce, ciphertext) {
		metrics.SignatureFailures.Inc()
		return models.Message{}, ErrSignatureMismatch
	}
	plain, id, err := s.cipher.Decrypt(ciphertext)
	if err != nil {
		return models.Message{}, err
	}
	if id != s.corpID {
		metrics.CorpIDMismatches.Inc()
		return models.Message{}, ErrCorpIDMismatch
	}
	return ParseMessage(plain)
}

// EncryptReply builds a signed passive-reply envelope for the given
// plaintext. Empty timestamp or nonce are filled in, matching the
// platform's allowance to generate them instead of echoing the inbound
// values.
func (s *Service) EncryptReply(plaintext, timestamp, nonce string) (string, error) {
	if timestamp == "" {
		timestamp = strconv.FormatInt(time.Now().Unix(), 10)
	}
	if nonce == "" {
		nonce = uuid.NewString()
	}
	ciphertext, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	sig := Signature(s.token, timestamp, nonce, ciphertext)
	return BuildOuterEnvelope(ciphertext, sig, timestamp, nonce)
}
