package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/NethermindEth/bundle-sender/sender"
)

// removeOpsRequest/removeEntitiesRequest are the client-side wire messages
// for the op-pool RPC: entry_point as a bytes20, hashes/entities as
// repeated fields. The op-pool service itself is an external
// collaborator — only the client-side shape lives here.
type removeOpsRequest struct {
	EntryPoint common.Address `json:"entry_point"`
	Hashes     []common.Hash  `json:"hashes"`
}

type removeEntitiesRequest struct {
	EntryPoint common.Address  `json:"entry_point"`
	Entities   []wireEntity    `json:"entities"`
}

type wireEntity struct {
	Kind    uint8          `json:"kind"`
	Address common.Address `json:"address"`
}

// RemoteClient is a cloneable OperationPool client over HTTP+JSON.
// RemoteClient is a small value type: copying it (as Clone does) shares
// nothing mutable, so concurrent removals never contend on a lock.
type RemoteClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewRemoteClient constructs a client pointed at baseURL using
// http.DefaultClient.
func NewRemoteClient(baseURL string) RemoteClient {
	return RemoteClient{BaseURL: baseURL, HTTPClient: http.DefaultClient}
}

// Clone returns a copy of the client safe to use concurrently with the
// original and with other clones.
func (c RemoteClient) Clone() RemoteClient {
	return c
}

func (c RemoteClient) RemoveOps(ctx context.Context, entryPoint common.Address, hashes []common.Hash) error {
	if len(hashes) == 0 {
		return nil
	}
	return c.Clone().post(ctx, "/remove_ops", removeOpsRequest{EntryPoint: entryPoint, Hashes: hashes})
}

func (c RemoteClient) RemoveEntities(ctx context.Context, entryPoint common.Address, entities []sender.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	wire := make([]wireEntity, len(entities))
	for i, e := range entities {
		wire[i] = wireEntity{Kind: uint8(e.Kind), Address: e.Address}
	}
	return c.Clone().post(ctx, "/remove_entities", removeEntitiesRequest{EntryPoint: entryPoint, Entities: wire})
}

func (c RemoteClient) post(ctx context.Context, path string, body any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return fmt.Errorf("encoding op-pool request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, buf)
	if err != nil {
		return fmt.Errorf("building op-pool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling op-pool: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("op-pool returned status %d", resp.StatusCode)
	}
	return nil
}

var _ sender.OperationPool = RemoteClient{}
