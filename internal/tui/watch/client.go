package watch

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/relaybus/internal/logstore"
)

// --- Message types ---

type entryMsg logstore.Entry

type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	LogCount      int    `json:"log_count"`
	LogCapacity   int    `json:"log_capacity"`
	Generation    int64  `json:"generation"`
}

type errMsg error

type sseDisconnectedMsg struct{}
type clearedMsg struct{}

// --- Commands ---

// subscribeToEvents connects to the SSE /events endpoint and feeds entries
// into ch. Returns sseDisconnectedMsg when the connection drops.
func subscribeToEvents(apiURL, apiKey string, ch chan<- logstore.Entry) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, apiURL+"/events", nil)
		if err != nil {
			return errMsg(err)
		}
		setAuth(req, apiKey)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return sseDisconnectedMsg{}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var e logstore.Entry
			if err := json.Unmarshal([]byte(line[6:]), &e); err != nil {
				continue
			}
			ch <- e
		}

		return sseDisconnectedMsg{}
	}
}

// receiveNextEntry waits for the next entry from the channel.
func receiveNextEntry(ch <-chan logstore.Entry) tea.Cmd {
	return func() tea.Msg {
		return entryMsg(<-ch)
	}
}

// fetchHealth queries the /healthz endpoint.
func fetchHealth(apiURL, apiKey string) tea.Cmd {
	return func() tea.Msg {
		client := &http.Client{Timeout: 2 * time.Second}
		req, err := http.NewRequest(http.MethodGet, apiURL+"/healthz", nil)
		if err != nil {
			return errMsg(err)
		}
		setAuth(req, apiKey)

		resp, err := client.Do(req)
		if err != nil {
			return errMsg(err)
		}
		defer resp.Body.Close()

		var h healthMsg
		if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
			return errMsg(err)
		}
		return h
	}
}

// clearLogs posts /logs/clear.
func clearLogs(apiURL, apiKey string) tea.Cmd {
	return func() tea.Msg {
		client := &http.Client{Timeout: 2 * time.Second}
		req, err := http.NewRequest(http.MethodPost, apiURL+"/logs/clear", nil)
		if err != nil {
			return errMsg(err)
		}
		setAuth(req, apiKey)

		resp, err := client.Do(req)
		if err != nil {
			return errMsg(err)
		}
		defer resp.Body.Close()
		return clearedMsg{}
	}
}

func setAuth(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}
