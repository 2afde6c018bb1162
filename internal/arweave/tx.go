package arweave

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strconv"
)

// maxChunkSize is the network's chunk size for format-2 data trees.
const maxChunkSize = 256 * 1024

// Tag is one name/value pair attached to a transaction.
type Tag struct {
	Name  string
	Value string
}

// transaction is a format-2 Arweave transaction ready for submission.
// Data is never embedded; chunks are posted separately against DataRoot.
type transaction struct {
	Format    int       `json:"format"`
	ID        string    `json:"id"`
	LastTx    string    `json:"last_tx"`
	Owner     string    `json:"owner"`
	Tags      []wireTag `json:"tags"`
	Target    string    `json:"target"`
	Quantity  string    `json:"quantity"`
	DataRoot  string    `json:"data_root"`
	DataSize  string    `json:"data_size"`
	Data      string    `json:"data"`
	Reward    string    `json:"reward"`
	Signature string    `json:"signature"`

	chunks []chunk
}

// wireTag carries base64url-encoded tag fields on the wire.
type wireTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// chunk is one data chunk with its merkle inclusion proof.
type chunk struct {
	data     []byte
	dataPath []byte
	// offset of the chunk's last byte within the data, per the chunk
	// upload API.
	offset int
}

// newTransaction builds and signs a format-2 transaction carrying data.
func newTransaction(w *Wallet, data []byte, tags []Tag, anchor, reward string) (*transaction, error) {
	root, chunks := buildDataTree(data)

	tx := &transaction{
		Format:   2,
		LastTx:   anchor,
		Owner:    w.Owner(),
		Target:   "",
		Quantity: "0",
		DataRoot: base64.RawURLEncoding.EncodeToString(root),
		DataSize: strconv.Itoa(len(data)),
		Reward:   reward,
		chunks:   chunks,
	}
	for _, t := range tags {
		tx.Tags = append(tx.Tags, wireTag{
			Name:  base64.RawURLEncoding.EncodeToString([]byte(t.Name)),
			Value: base64.RawURLEncoding.EncodeToString([]byte(t.Value)),
		})
	}

	sigData, err := tx.signatureData(tags, root, len(data))
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(sigData)
	sig, err := rsa.SignPSS(rand.Reader, w.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	id := sha256.Sum256(sig)
	tx.ID = base64.RawURLEncoding.EncodeToString(id[:])
	tx.Signature = base64.RawURLEncoding.EncodeToString(sig)
	return tx, nil
}

// signatureData is the format-2 deep hash preimage.
func (tx *transaction) signatureData(tags []Tag, dataRoot []byte, dataSize int) ([]byte, error) {
	anchor, err := base64.RawURLEncoding.DecodeString(tx.LastTx)
	if err != nil {
		return nil, fmt.Errorf("decode anchor: %w", err)
	}
	owner, err := base64.RawURLEncoding.DecodeString(tx.Owner)
	if err != nil {
		return nil, fmt.Errorf("decode owner: %w", err)
	}

	tagList := make([]deepHashable, 0, len(tags))
	for _, t := range tags {
		tagList = append(tagList, dhList{dhBlob(t.Name), dhBlob(t.Value)})
	}

	h := deepHash(dhList{
		dhBlob("2"),
		dhBlob(owner),
		dhBlob(nil), // target
		dhBlob("0"), // quantity
		dhBlob(tx.Reward),
		dhBlob(anchor),
		dhList(tagList),
		dhBlob(strconv.Itoa(dataSize)),
		dhBlob(dataRoot),
	})
	return h[:], nil
}

// Deep hash, the network's canonical structure hash: SHA-384 over tagged
// blobs and lists.

type deepHashable interface{ deepHash() [48]byte }

type dhBlob []byte

func (b dhBlob) deepHash() [48]byte {
	tag := []byte("blob" + strconv.Itoa(len(b)))
	tagHash := sha512.Sum384(tag)
	blobHash := sha512.Sum384(b)
	return sha512.Sum384(append(tagHash[:], blobHash[:]...))
}

type dhList []deepHashable

func (l dhList) deepHash() [48]byte {
	tag := []byte("list" + strconv.Itoa(len(l)))
	acc := sha512.Sum384(tag)
	for _, e := range l {
		eh := e.deepHash()
		acc = sha512.Sum384(append(acc[:], eh[:]...))
	}
	return acc
}

func deepHash(v deepHashable) [48]byte { return v.deepHash() }

// Merkle data tree. Leaves hash chunk data with the chunk's end offset;
// branches hash child ids with the split offset. The root id is the
// transaction's data_root.

type merkleNode struct {
	id          []byte
	minOffset   int
	maxOffset   int
	left, right *merkleNode
	dataHash    []byte // leaves only
}

// buildDataTree splits data into chunks, builds the merkle tree, and
// returns the root id plus each chunk with its inclusion proof.
func buildDataTree(data []byte) ([]byte, []chunk) {
	if len(data) == 0 {
		return nil, nil
	}

	var leaves []*merkleNode
	var raw [][]byte
	for off := 0; off < len(data); off += maxChunkSize {
		end := off + maxChunkSize
		if end > len(data) {
			end = len(data)
		}
		piece := data[off:end]
		dataHash := sha256.Sum256(piece)
		leaves = append(leaves, &merkleNode{
			id:        hashLeaf(dataHash[:], end),
			minOffset: off,
			maxOffset: end,
			dataHash:  dataHash[:],
		})
		raw = append(raw, piece)
	}

	nodes := leaves
	for len(nodes) > 1 {
		var next []*merkleNode
		for i := 0; i < len(nodes); i += 2 {
			if i+1 == len(nodes) {
				next = append(next, nodes[i])
				continue
			}
			l, r := nodes[i], nodes[i+1]
			next = append(next, &merkleNode{
				id:        hashBranch(l.id, r.id, l.maxOffset),
				minOffset: l.minOffset,
				maxOffset: r.maxOffset,
				left:      l,
				right:     r,
			})
		}
		nodes = next
	}
	root := nodes[0]

	chunks := make([]chunk, len(leaves))
	for i, leaf := range leaves {
		chunks[i] = chunk{
			data:     raw[i],
			dataPath: proofFor(root, leaf),
			offset:   leaf.maxOffset - 1,
		}
	}
	return root.id, chunks
}

func hashLeaf(dataHash []byte, endOffset int) []byte {
	dh := sha256.Sum256(dataHash)
	oh := sha256.Sum256(offsetBytes(endOffset))
	id := sha256.Sum256(append(dh[:], oh[:]...))
	return id[:]
}

func hashBranch(left, right []byte, splitOffset int) []byte {
	lh := sha256.Sum256(left)
	rh := sha256.Sum256(right)
	oh := sha256.Sum256(offsetBytes(splitOffset))
	buf := append(lh[:], rh[:]...)
	id := sha256.Sum256(append(buf, oh[:]...))
	return id[:]
}

// offsetBytes is the 32-byte big-endian note used in node hashes.
func offsetBytes(n int) []byte {
	b := make([]byte, 32)
	for i := 31; i >= 0 && n > 0; i-- {
		b[i] = byte(n & 0xff)
		n >>= 8
	}
	return b
}

// proofFor walks from root to leaf collecting the inclusion proof in the
// chunk upload wire form.
func proofFor(node, leaf *merkleNode) []byte {
	if node.left == nil {
		// Leaf proof segment: data hash plus end offset.
		return append(append([]byte{}, node.dataHash...), offsetBytes(node.maxOffset)...)
	}
	seg := append(append([]byte{}, node.left.id...), node.right.id...)
	seg = append(seg, offsetBytes(node.left.maxOffset)...)

	if leaf.maxOffset <= node.left.maxOffset {
		return append(seg, proofFor(node.left, leaf)...)
	}
	return append(seg, proofFor(node.right, leaf)...)
}
