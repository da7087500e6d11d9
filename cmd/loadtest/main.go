package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL  = flag.String("base", "http://localhost:8080", "http base url")
	wsURL    = flag.String("ws", "ws://localhost:8080/ws", "websocket url")
	pairs    = flag.Int("pairs", 50, "number of user pairs")
	msgCount = flag.Int("messages", 20, "messages per user")
)

type account struct {
	token string
	id    int64
	name  string
}

func main() {
	flag.Parse()

	log.Printf("starting load: %d users, %d messages each", *pairs*2, *msgCount)
	var wg sync.WaitGroup
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()
	log.Println("load complete")
}

func runPair(pairID int) {
	a, err := authenticate(fmt.Sprintf("u_%d_a", pairID))
	if err != nil {
		log.Printf("auth failed [pair %d a]: %v", pairID, err)
		return
	}
	b, err := authenticate(fmt.Sprintf("u_%d_b", pairID))
	if err != nil {
		log.Printf("auth failed [pair %d b]: %v", pairID, err)
		return
	}

	// Direct messaging requires friendship, so befriend the pair first.
	if err := befriend(a, b); err != nil {
		log.Printf("befriend failed [pair %d]: %v", pairID, err)
		return
	}

	convID, err := directConversation(a, b.id)
	if err != nil {
		log.Printf("conversation failed [pair %d]: %v", pairID, err)
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go chatter(&wsWg, a, convID)
	go chatter(&wsWg, b, convID)
	wsWg.Wait()
}

// authenticate registers the user (ignoring conflicts on reruns) and logs in.
func authenticate(username string) (account, error) {
	const password = "password123"

	resp, err := postJSON("", "/register", map[string]string{
		"username": username, "password": password, "display_name": username,
	})
	if err != nil {
		return account{}, err
	}
	resp.Body.Close()

	resp, err = postJSON("", "/login", map[string]string{
		"username": username, "password": password,
	})
	if err != nil {
		return account{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return account{}, fmt.Errorf("login status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return account{}, err
	}
	return account{token: body.AccessToken, id: body.User.ID, name: username}, nil
}

// befriend sends a request from a to b and accepts it as b. A conflict on
// the send means the pair is already connected from a previous run.
func befriend(a, b account) error {
	resp, err := postJSON(a.token, "/api/friends/requests", map[string]int64{"receiver_id": b.id})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("send request status %d", resp.StatusCode)
	}

	var req struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&req); err != nil {
		return err
	}

	resp, err = postJSON(b.token, fmt.Sprintf("/api/friends/requests/%d/accept", req.ID), struct{}{})
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("accept status %d", resp.StatusCode)
	}
	return nil
}

func directConversation(a account, targetID int64) (int64, error) {
	resp, err := postJSON(a.token, "/api/conversations", map[string]int64{"target_id": targetID})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("create conversation status %d", resp.StatusCode)
	}

	var conv struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return 0, err
	}
	return conv.ID, nil
}

// chatter joins the conversation over the websocket and streams messages.
func chatter(wg *sync.WaitGroup, acct account, convID int64) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", *wsURL, acct.token), nil)
	if err != nil {
		log.Printf("ws dial failed [%s]: %v", acct.name, err)
		return
	}
	defer conn.Close()

	// Drain incoming events so the server-side send buffer never fills.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(map[string]any{"type": "join", "conversation_id": convID}); err != nil {
		log.Printf("join failed [%s]: %v", acct.name, err)
		return
	}

	for i := 0; i < *msgCount; i++ {
		frame := map[string]any{
			"type":            "message",
			"conversation_id": convID,
			"content":         fmt.Sprintf("load message %d from %s", i, acct.name),
		}
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("send failed [%s]: %v", acct.name, err)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("%s sent %d messages", acct.name, *msgCount)
}

func postJSON(token, endpoint string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, *baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}
