package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
)

// Connector endpoints. Each tool maps to exactly one external service.
const (
	serperURL     = "https://google.serper.dev/search"
	firecrawlURL  = "https://api.firecrawl.dev/v1/scrape"
	geocodeURL    = "https://maps.googleapis.com/maps/api/geocode/json"
	directionsURL = "https://maps.googleapis.com/maps/api/directions/json"
	dohURL        = "https://cloudflare-dns.com/dns-query"
	visionURL     = "https://api.openai.com/v1/chat/completions"
	visionModel   = "gpt-4o-mini"
)

func (e *Executor) webSearch(ctx context.Context, args map[string]interface{}, creds Credentials) (string, error) {
	key, err := creds.get("serper")
	if err != nil {
		return "", err
	}

	payload, _ := json.Marshal(map[string]string{"q": strArg(args, "query", "")})
	body, err := e.doJSON(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, serperURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-KEY", key)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("web search failed: %w", err)
	}
	return string(body), nil
}

func (e *Executor) scrapeWebsite(ctx context.Context, args map[string]interface{}, creds Credentials) (string, error) {
	key, err := creds.get("firecrawl")
	if err != nil {
		return "", err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"url":     strArg(args, "url", ""),
		"formats": []string{"markdown"},
	})
	body, err := e.doJSON(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, firecrawlURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+key)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("scrape failed: %w", err)
	}
	return string(body), nil
}

func (e *Executor) geocodeAddress(ctx context.Context, args map[string]interface{}, creds Credentials) (string, error) {
	key, err := creds.get("google_maps")
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("address", strArg(args, "address", ""))
	q.Set("key", key)
	target := geocodeURL + "?" + q.Encode()

	body, err := e.doJSON(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	})
	if err != nil {
		return "", fmt.Errorf("geocoding failed: %w", err)
	}
	return string(body), nil
}

func (e *Executor) getDirections(ctx context.Context, args map[string]interface{}, creds Credentials) (string, error) {
	key, err := creds.get("google_maps")
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("origin", strArg(args, "origin", ""))
	q.Set("destination", strArg(args, "destination", ""))
	q.Set("mode", strArg(args, "mode", "driving"))
	q.Set("key", key)
	target := directionsURL + "?" + q.Encode()

	body, err := e.doJSON(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	})
	if err != nil {
		return "", fmt.Errorf("directions lookup failed: %w", err)
	}
	return string(body), nil
}

// sendEmail delivers through the user's own SMTP account. net/smtp is
// used directly: the message is plain text with static headers, which
// is below the threshold where a mail library earns its keep.
func (e *Executor) sendEmail(ctx context.Context, args map[string]interface{}, creds Credentials) (string, error) {
	host, err := creds.get("smtp_host")
	if err != nil {
		return "", err
	}
	username, err := creds.get("smtp_username")
	if err != nil {
		return "", err
	}
	password, err := creds.get("smtp_password")
	if err != nil {
		return "", err
	}
	port := creds["smtp_port"]
	if port == "" {
		port = "587"
	}
	from := creds["smtp_from"]
	if from == "" {
		from = username
	}

	to := strArg(args, "to", "")
	subject := strArg(args, "subject", "")
	bodyText := strArg(args, "body", "")

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(bodyText)

	// smtp.SendMail has no context hook, so honor cancellation before
	// the dial rather than mid-session.
	if err := ctx.Err(); err != nil {
		return "", err
	}

	auth := smtp.PlainAuth("", username, password, host)
	if err := smtp.SendMail(host+":"+port, auth, from, []string{to}, []byte(msg.String())); err != nil {
		return "", fmt.Errorf("email delivery failed: %w", err)
	}

	out, _ := json.Marshal(map[string]string{"status": "sent", "to": to})
	return string(out), nil
}

func (e *Executor) dnsLookup(ctx context.Context, args map[string]interface{}) (string, error) {
	q := url.Values{}
	q.Set("name", strArg(args, "domain", ""))
	q.Set("type", strArg(args, "type", "A"))
	target := dohURL + "?" + q.Encode()

	body, err := e.doJSON(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/dns-json")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("dns lookup failed: %w", err)
	}
	return string(body), nil
}

func (e *Executor) executeCode(ctx context.Context, args map[string]interface{}) (string, error) {
	language := strArg(args, "language", "python")
	code := strArg(args, "code", "")

	output, err := e.sandbox.Run(ctx, language, code)
	if err != nil {
		return "", err
	}

	out, _ := json.Marshal(map[string]string{"output": output})
	return string(out), nil
}

func (e *Executor) analyzeImage(ctx context.Context, args map[string]interface{}, creds Credentials) (string, error) {
	key, err := creds.get("openai")
	if err != nil {
		return "", err
	}

	prompt := strArg(args, "prompt", "Describe this image in detail.")
	imageURL := strArg(args, "image_url", "")

	payload, _ := json.Marshal(map[string]interface{}{
		"model": visionModel,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": prompt},
					{"type": "image_url", "image_url": map[string]string{"url": imageURL}},
				},
			},
		},
		"max_tokens": 500,
	})

	body, err := e.doJSON(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, visionURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+key)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("image analysis failed: %w", err)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &completion); err != nil || len(completion.Choices) == 0 {
		return "", fmt.Errorf("image analysis returned an unreadable response")
	}

	out, _ := json.Marshal(map[string]string{"analysis": completion.Choices[0].Message.Content})
	return string(out), nil
}
