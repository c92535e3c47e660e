// Package mgmt drives the forwarder's GraphQL management endpoint: it
// creates the data-plane face, inserts the FIB entry for a served prefix,
// and tears both down on close. The data plane itself never touches this
// endpoint; the pipeline only consumes the returned socket path.
package mgmt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/named-data/ndnd/std/log"
)

const requestTimeout = 4 * time.Second

const createFaceQuery = `
mutation createFace($locator: JSON!) {
  createFace(locator: $locator) {
    id
    locator
  }
}`

const insertFibEntryQuery = `
mutation insertFibEntry($name: Name!, $nexthops: [ID!]!) {
  insertFibEntry(name: $name, nexthops: $nexthops) {
    id
  }
}`

const deleteQuery = `
mutation delete($id: ID!) {
  delete(id: $id)
}`

// Client manages one forwarder-side face and at most one FIB entry.
type Client struct {
	gqlserver string
	http      *http.Client

	faceID     string
	fibID      string
	socketPath string
}

func NewClient(gqlserver string) *Client {
	return &Client{
		gqlserver: gqlserver,
		http:      &http.Client{Timeout: requestTimeout},
	}
}

// log identifier
func (c *Client) String() string {
	return "mgmt-client"
}

// SocketPath returns the shared-memory socket of the created face.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// FaceID returns the forwarder-side id of the created face.
func (c *Client) FaceID() string {
	return c.faceID
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) do(query string, variables map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}

	resp, err := c.http.Post(c.gqlserver, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gqlserver unreachable: %w", err)
	}
	defer resp.Body.Close()

	var reply gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("invalid gqlserver response: %w", err)
	}
	if len(reply.Errors) > 0 {
		return fmt.Errorf("gqlserver error: %s", reply.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(reply.Data, out); err != nil {
			return fmt.Errorf("invalid gqlserver response: %w", err)
		}
	}
	return nil
}

// CreateFace creates a memif face on the forwarder and remembers its id and
// socket path.
func (c *Client) CreateFace(id int, dataroom int) error {
	socketName := fmt.Sprintf("/run/ndn/ndnc-memif-%d.sock", id)

	var out struct {
		CreateFace struct {
			ID      string `json:"id"`
			Locator struct {
				SocketName string `json:"socketName"`
			} `json:"locator"`
		} `json:"createFace"`
	}
	err := c.do(createFaceQuery, map[string]any{
		"locator": map[string]any{
			"scheme":     "memif",
			"socketName": socketName,
			"id":         id,
			"dataroom":   dataroom,
			"role":       "server",
		},
	}, &out)
	if err != nil {
		return err
	}

	c.faceID = out.CreateFace.ID
	c.socketPath = out.CreateFace.Locator.SocketName
	if c.socketPath == "" {
		c.socketPath = socketName
	}

	log.Info(c, "Face created", "id", c.faceID, "socket", c.socketPath)
	return nil
}

// InsertFibEntry advertises the prefix towards the created face.
func (c *Client) InsertFibEntry(prefix string) error {
	if c.faceID == "" {
		return fmt.Errorf("no face to advertise on")
	}

	var out struct {
		InsertFibEntry struct {
			ID string `json:"id"`
		} `json:"insertFibEntry"`
	}
	err := c.do(insertFibEntryQuery, map[string]any{
		"name":     prefix,
		"nexthops": []string{c.faceID},
	}, &out)
	if err != nil {
		return err
	}

	c.fibID = out.InsertFibEntry.ID
	log.Info(c, "FIB entry inserted", "id", c.fibID, "prefix", prefix)
	return nil
}

// DeleteFace removes the FIB entry (if any) and the face from the
// forwarder. Safe to call more than once.
func (c *Client) DeleteFace() error {
	if c.fibID != "" {
		if err := c.do(deleteQuery, map[string]any{"id": c.fibID}, nil); err != nil {
			log.Warn(c, "Failed to delete FIB entry", "err", err)
		}
		c.fibID = ""
	}

	if c.faceID == "" {
		return nil
	}
	if err := c.do(deleteQuery, map[string]any{"id": c.faceID}, nil); err != nil {
		return err
	}

	log.Info(c, "Face deleted", "id", c.faceID)
	c.faceID = ""
	c.socketPath = ""
	return nil
}
