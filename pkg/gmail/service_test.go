package gmail

import (
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"leadmail-backend/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

func TestGetHeader(t *testing.T) {
	headers := []*gmail.MessagePartHeader{
		{Name: "From", Value: "a@x.com"},
		{Name: "Subject", Value: "Hello"},
	}

	assert.Equal(t, "Hello", getHeader(headers, "Subject"))
	assert.Equal(t, "Hello", getHeader(headers, "subject"))
	assert.Equal(t, "a@x.com", getHeader(headers, "FROM"))
	assert.Equal(t, "", getHeader(headers, "Message-ID"))
}

func TestSplitAddress(t *testing.T) {
	name, addr := splitAddress("Jane Doe <jane@example.com>")
	assert.Equal(t, "Jane Doe", name)
	assert.Equal(t, "jane@example.com", addr)

	// Bare address: name defaults to the address itself
	name, addr = splitAddress("jane@example.com")
	assert.Equal(t, "jane@example.com", name)
	assert.Equal(t, "jane@example.com", addr)

	// RFC 2047 encoded display name
	name, addr = splitAddress("=?UTF-8?Q?Jos=C3=A9?= <jose@example.com>")
	assert.Equal(t, "José", name)
	assert.Equal(t, "jose@example.com", addr)

	// Malformed input still falls back to the angle-bracket split
	name, addr = splitAddress("Support Team <support@@example.com>")
	assert.Equal(t, "Support Team", name)
	assert.Equal(t, "support@@example.com", addr)
}

func TestExtractBodyDirect(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("plain text"))},
	}
	assert.Equal(t, "plain text", extractBody(payload))
}

func TestExtractBodyPrefersPlainOverHTML(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "text/html",
				Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("<p>hi</p>"))},
			},
			{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("hi"))},
			},
		},
	}
	assert.Equal(t, "hi", extractBody(payload))
}

func TestExtractBodyNestedMultipart(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{
						MimeType: "text/html",
						Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("<p>nested</p>"))},
					},
				},
			},
		},
	}
	assert.Equal(t, "<p>nested</p>", extractBody(payload))
}

func TestHasLabel(t *testing.T) {
	labels := []string{"INBOX", "UNREAD"}
	assert.True(t, hasLabel(labels, "INBOX"))
	assert.False(t, hasLabel(labels, "SENT"))
	assert.False(t, hasLabel(nil, "INBOX"))
}

func TestClassifyError(t *testing.T) {
	assert.NoError(t, classifyError(nil, false))

	err := classifyError(&googleapi.Error{Code: 401, Message: "Invalid Credentials"}, false)
	assert.True(t, apperrors.IsAuthExpired(err))

	err = classifyError(&googleapi.Error{Code: 403, Message: "Request had insufficient authentication scopes"}, false)
	assert.True(t, apperrors.IsAuthExpired(err))

	// 404 means an expired cursor only on the history endpoint
	err = classifyError(&googleapi.Error{Code: 404, Message: "Not Found"}, true)
	assert.True(t, apperrors.IsCursorExpired(err))

	err = classifyError(&googleapi.Error{Code: 404, Message: "Not Found"}, false)
	assert.False(t, apperrors.IsCursorExpired(err))
	assert.True(t, apperrors.IsRemoteUnavailable(err))

	err = classifyError(&oauth2.RetrieveError{}, false)
	assert.True(t, apperrors.IsAuthExpired(err))

	// Wrapped googleapi errors still classify
	wrapped := fmt.Errorf("call failed: %w", &googleapi.Error{Code: 401})
	assert.True(t, apperrors.IsAuthExpired(classifyError(wrapped, false)))

	err = classifyError(errors.New("connection reset"), false)
	assert.True(t, apperrors.IsRemoteUnavailable(err))
}
