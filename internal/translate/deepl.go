// Package translate localizes vacancy titles through the DeepL API.
// Translation is best effort and strictly budgeted: a missing API key
// or an exhausted budget skips the pass without failing the run.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dachjobs/go-crawler/internal/domain"
	"github.com/dachjobs/go-crawler/internal/fingerprint"
)

const (
	defaultAPIURL = "https://api-free.deepl.com/v2"

	// consecutive API failures before the session aborts
	maxConsecutiveErrors = 3
)

// Store is the slice of the vacancy store the translator needs.
type Store interface {
	UntranslatedTitles(ctx context.Context, limit int) ([]domain.VacancyRecord, error)
	UpdateTranslatedTitle(ctx context.Context, fingerprint, translated string) error
}

// Translator translates stored titles. Titles are grouped by their
// cleaned form first so one API call covers every vacancy sharing a
// title, and senior-level postings are marked as done without a call.
type Translator struct {
	store        Store
	apiKey       string
	apiURL       string
	targetLang   string
	sessionLimit int // characters per run
	callDelay    time.Duration
	client       *http.Client
}

// New creates a translator. An empty apiKey is allowed; Run becomes a
// no-op then.
func New(store Store, apiKey, targetLang string, sessionLimit int) *Translator {
	if targetLang == "" {
		targetLang = "EN-GB"
	}
	if sessionLimit <= 0 {
		sessionLimit = 5000
	}
	return &Translator{
		store:        store,
		apiKey:       apiKey,
		apiURL:       defaultAPIURL,
		targetLang:   targetLang,
		sessionLimit: sessionLimit,
		callDelay:    300 * time.Millisecond,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

// Run translates untranslated titles until the session character
// budget runs out. Returns the number of vacancies updated.
func (t *Translator) Run(ctx context.Context, limit int) (int, error) {
	if t.apiKey == "" {
		log.Printf("[Translator] No DeepL API key configured, skipping")
		return 0, nil
	}

	if used, quota, err := t.usage(ctx); err == nil {
		log.Printf("[Translator] Monthly DeepL usage: %d/%d chars", used, quota)
		if used >= quota {
			log.Printf("[Translator] Monthly limit reached, skipping")
			return 0, nil
		}
	}

	records, err := t.store.UntranslatedTitles(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("load untranslated titles: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	// Senior postings keep their original title to save credits.
	groups := map[string][]string{}
	var updated int
	for _, rec := range records {
		if rec.SearchLevel == "Senior" {
			if err := t.store.UpdateTranslatedTitle(ctx, rec.Fingerprint, rec.Title); err != nil {
				log.Printf("[Translator] Mark senior title %s: %v", rec.Fingerprint, err)
				continue
			}
			updated++
			continue
		}
		clean := fingerprint.CleanTitle(rec.Title)
		if clean == "" {
			continue
		}
		groups[clean] = append(groups[clean], rec.Fingerprint)
	}
	log.Printf("[Translator] %d vacancies reduced to %d unique cleaned titles", len(records), len(groups))

	chars := 0
	errStreak := 0
	for title, fps := range groups {
		if chars+len(title) > t.sessionLimit {
			log.Printf("[Translator] Session limit reached (%d/%d chars), stopping", chars, t.sessionLimit)
			break
		}
		select {
		case <-ctx.Done():
			return updated, ctx.Err()
		default:
		}

		translated, err := t.translate(ctx, title)
		if err != nil {
			log.Printf("[Translator] Translate %q: %v", title, err)
			if errStreak++; errStreak >= maxConsecutiveErrors {
				log.Printf("[Translator] Too many consecutive errors, stopping session")
				break
			}
			continue
		}
		errStreak = 0
		chars += len(title)

		for _, fp := range fps {
			if err := t.store.UpdateTranslatedTitle(ctx, fp, translated); err != nil {
				log.Printf("[Translator] Store title for %s: %v", fp, err)
				continue
			}
			updated++
		}
		time.Sleep(t.callDelay)
	}

	log.Printf("[Translator] Finished: %d vacancies updated, %d chars used", updated, chars)
	return updated, nil
}

func (t *Translator) translate(ctx context.Context, text string) (string, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("target_lang", t.targetLang)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL+"/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+t.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var payload struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(payload.Translations) == 0 {
		return "", fmt.Errorf("empty translation result")
	}
	return payload.Translations[0].Text, nil
}

// usage reads the account's monthly character meter.
func (t *Translator) usage(ctx context.Context) (used, quota int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.apiURL+"/usage", nil)
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var payload struct {
		CharacterCount int `json:"character_count"`
		CharacterLimit int `json:"character_limit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, 0, fmt.Errorf("decode response: %w", err)
	}
	return payload.CharacterCount, payload.CharacterLimit, nil
}
