package scram

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestClientProofVector reproduces the RFC 7677 reference exchange with a
// fixed client nonce, asserting ClientProof and the server's verifying
// signature are bit-for-bit equal to the reference vector.
func TestClientProofVector(t *testing.T) {
	c := &Client{username: "user", password: "pencil", clientNonce: "rOprNGfwEbeRWgbNEkqO"}
	c.clientFirstBare = "n=" + saslname(c.username) + ",r=" + c.clientNonce

	serverFirst := "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"

	clientFinal, err := c.ContinueResponse(serverFirst)
	require.NoError(t, err)
	require.Contains(t, clientFinal, "p=dHzbZapWIk4jUhN+Ute9ytag9zjfMHgsqmmiz7AndVQ=")
	require.Contains(t, clientFinal, "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0")

	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	signature := hmacSHA256(serverKey, []byte(c.authMessage))
	require.Equal(t, "6rriTRBi23WpRR/wtup+mMhUZUn/dB5nLTJRsjl95G4=", base64.StdEncoding.EncodeToString(signature))

	require.NoError(t, c.Finish("v=6rriTRBi23WpRR/wtup+mMhUZUn/dB5nLTJRsjl95G4="))
}

func TestFinishRejectsServerError(t *testing.T) {
	c := &Client{username: "user", password: "pencil", clientNonce: "rOprNGfwEbeRWgbNEkqO"}
	c.clientFirstBare = "n=" + saslname(c.username) + ",r=" + c.clientNonce

	serverFirst := "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"
	_, err := c.ContinueResponse(serverFirst)
	require.NoError(t, err)

	err = c.Finish("e=invalid-proof")
	require.ErrorIs(t, err, ErrServerRejected)
}

func TestFinishRejectsBadSignature(t *testing.T) {
	c := &Client{username: "user", password: "pencil", clientNonce: "rOprNGfwEbeRWgbNEkqO"}
	c.clientFirstBare = "n=" + saslname(c.username) + ",r=" + c.clientNonce

	serverFirst := "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"
	_, err := c.ContinueResponse(serverFirst)
	require.NoError(t, err)

	err = c.Finish("v=" + base64.StdEncoding.EncodeToString([]byte("not-the-signature")))
	require.ErrorIs(t, err, ErrServerSignatureMismatch)
}

func TestContinueResponseRejectsNonceMismatch(t *testing.T) {
	c := &Client{username: "user", password: "pencil", clientNonce: "rOprNGfwEbeRWgbNEkqO"}
	c.clientFirstBare = "n=" + saslname(c.username) + ",r=" + c.clientNonce

	serverFirst := "r=somethingElse,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"
	_, err := c.ContinueResponse(serverFirst)
	require.ErrorIs(t, err, ErrServerNonceMismatch)
}

func TestSaslnameEscapesReservedCharacters(t *testing.T) {
	require.Equal(t, "a=3Db=2Cc", saslname("a=b,c"))
}

func TestSupportsMechanisms(t *testing.T) {
	require.True(t, SupportsMechanisms([]string{"SCRAM-SHA-256-PLUS", Mechanism}))
	require.False(t, SupportsMechanisms([]string{"SCRAM-SHA-256-PLUS"}))
}

func TestInitialResponseIncludesGS2HeaderAndEscapedName(t *testing.T) {
	c := NewClient("us,er", "pencil")
	resp, err := c.InitialResponse()
	require.NoError(t, err)
	require.Contains(t, resp, gs2Header+"n=us=2Cer,r=")
	require.Len(t, c.clientNonce, 32) // 24 raw bytes, base64-encoded
}
