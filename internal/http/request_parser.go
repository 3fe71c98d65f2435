package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

const maxBodyBytes = 64 << 10

// maxAmountExponent bounds exponent-form JSON numbers so 1e999999 cannot
// expand into a huge literal.
const maxAmountExponent = 18

// requestError is a client mistake in the request itself, not in the domain.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

type createGroupRequest struct {
	People []string `json:"people"`
}

type addParticipantRequest struct {
	Name string `json:"name"`
}

type addExpenseRequest struct {
	Description string     `json:"description"`
	Amount      amountText `json:"amount"`
	PaidBy      string     `json:"paidBy"`
	SplitAmong  []string   `json:"splitAmong"`
}

// amountText accepts an amount as a JSON string ("12,50") or number (12.5)
// and keeps the literal text so no float rounding happens. Exponent-form
// numbers (1e2) are rewritten as plain decimals; strings are kept verbatim.
type amountText string

func (a *amountText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = amountText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a string or number")
	}
	text := n.String()
	if strings.ContainsAny(text, "eE") {
		d, err := decimal.NewFromString(text)
		if err != nil {
			return fmt.Errorf("amount must be a string or number")
		}
		if exp := d.Exponent(); exp > maxAmountExponent || exp < -maxAmountExponent {
			return fmt.Errorf("amount %s is out of range", text)
		}
		text = d.String()
	}
	*a = amountText(text)
	return nil
}

// formDecoder is implemented by requests that can also arrive form-encoded.
type formDecoder interface {
	fromForm(url.Values)
}

func (c *createGroupRequest) fromForm(v url.Values) { c.People = v["people"] }

func (p *addParticipantRequest) fromForm(v url.Values) { p.Name = v.Get("name") }

func (e *addExpenseRequest) fromForm(v url.Values) {
	e.Description = v.Get("description")
	e.Amount = amountText(v.Get("amount"))
	e.PaidBy = v.Get("paidBy")
	e.SplitAmong = v["splitAmong"]
}

// decodeRequest fills dst from a JSON or form-encoded body of at most maxBodyBytes.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst formDecoder) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &requestError{status: http.StatusRequestEntityTooLarge, msg: "request body too large"}
		}
		return badRequest("read body: %v", err)
	}

	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err = mime.ParseMediaType(ct); err != nil {
			return badRequest("invalid Content-Type")
		}
	}

	switch {
	case mediaType == "application/x-www-form-urlencoded":
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return badRequest("malformed form body")
		}
		dst.fromForm(form)
		return nil
	case mediaType == "" || mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return decodeJSON(body, dst)
	default:
		return &requestError{status: http.StatusUnsupportedMediaType, msg: "unsupported Content-Type " + mediaType}
	}
}

func decodeJSON(body []byte, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return badRequest("request body is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr):
			return badRequest("malformed JSON at offset %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return badRequest("field %q has the wrong type", typeErr.Field)
		default:
			return badRequest("invalid JSON: %v", err)
		}
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}
