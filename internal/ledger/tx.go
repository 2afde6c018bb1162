package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/mr-tron/base58"

	"github.com/execute007/x1punks/internal/wallet"
)

// systemProgram is the native program owning plain accounts and transfers.
const systemProgram = "11111111111111111111111111111111"

// System-program instruction tags.
const (
	sysCreateAccount uint32 = 0
	sysTransfer      uint32 = 2
)

// accountMeta describes one account referenced by a transaction.
type accountMeta struct {
	pubkey   []byte
	signer   bool
	writable bool
}

// instruction is one program invocation inside a transaction.
type instruction struct {
	programID []byte
	accounts  []accountMeta
	data      []byte
}

// appendCompactU16 encodes n in the ledger's compact-u16 varint form.
func appendCompactU16(buf []byte, n int) []byte {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// buildMessage lays out the canonical message: header, account table
// (writable signers, readonly signers, writable non-signers, readonly
// non-signers), recent blockhash, instructions.
func buildMessage(instrs []instruction, payer []byte, blockhash []byte) ([]byte, [][]byte) {
	index := make(map[string]int)
	var slots []accountMeta
	add := func(m accountMeta) {
		key := string(m.pubkey)
		if i, ok := index[key]; ok {
			slots[i].signer = slots[i].signer || m.signer
			slots[i].writable = slots[i].writable || m.writable
			return
		}
		index[key] = len(slots)
		slots = append(slots, m)
	}

	add(accountMeta{pubkey: payer, signer: true, writable: true})
	for _, in := range instrs {
		for _, m := range in.accounts {
			add(m)
		}
		add(accountMeta{pubkey: in.programID})
	}

	// Writable signers, readonly signers, writable non-signers, readonly
	// non-signers. Stable, so the payer stays at index 0.
	class := func(m accountMeta) int {
		switch {
		case m.signer && m.writable:
			return 0
		case m.signer:
			return 1
		case m.writable:
			return 2
		default:
			return 3
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return class(slots[i]) < class(slots[j]) })

	var numSigners, numReadonlySigned, numReadonlyUnsigned int
	keyIndex := make(map[string]byte, len(slots))
	for i, m := range slots {
		keyIndex[string(m.pubkey)] = byte(i)
		if m.signer {
			numSigners++
			if !m.writable {
				numReadonlySigned++
			}
		} else if !m.writable {
			numReadonlyUnsigned++
		}
	}

	var msg []byte
	msg = append(msg, byte(numSigners), byte(numReadonlySigned), byte(numReadonlyUnsigned))

	msg = appendCompactU16(msg, len(slots))
	for _, m := range slots {
		msg = append(msg, m.pubkey...)
	}

	msg = append(msg, blockhash...)

	msg = appendCompactU16(msg, len(instrs))
	for _, in := range instrs {
		msg = append(msg, keyIndex[string(in.programID)])
		msg = appendCompactU16(msg, len(in.accounts))
		for _, m := range in.accounts {
			msg = append(msg, keyIndex[string(m.pubkey)])
		}
		msg = appendCompactU16(msg, len(in.data))
		msg = append(msg, in.data...)
	}

	signerKeys := make([][]byte, 0, numSigners)
	for _, m := range slots[:numSigners] {
		signerKeys = append(signerKeys, m.pubkey)
	}
	return msg, signerKeys
}

// signTransaction signs the message with every required signer and returns
// the wire-encoded transaction: signature table followed by the message.
func signTransaction(msg []byte, signerKeys [][]byte, signers ...*wallet.Wallet) ([]byte, string, error) {
	byKey := make(map[string]*wallet.Wallet, len(signers))
	for _, w := range signers {
		byKey[string(w.PublicKey())] = w
	}

	var out []byte
	out = appendCompactU16(out, len(signerKeys))

	var first string
	for i, key := range signerKeys {
		w, ok := byKey[string(key)]
		if !ok {
			return nil, "", fmt.Errorf("missing signer for account %s", base58.Encode(key))
		}
		sig := w.Sign(msg)
		out = append(out, sig...)
		if i == 0 {
			first = base58.Encode(sig)
		}
	}
	out = append(out, msg...)

	// The transaction id is the payer's signature.
	return out, first, nil
}

// createAccountInstruction funds a new account with the given size and
// lamports, owned by owner.
func createAccountInstruction(payer, newAccount *wallet.Wallet, owner []byte, lamports uint64, space int) instruction {
	var data bytes.Buffer
	binary.Write(&data, binary.LittleEndian, sysCreateAccount)
	binary.Write(&data, binary.LittleEndian, lamports)
	binary.Write(&data, binary.LittleEndian, uint64(space))
	data.Write(owner)

	sys, _ := base58.Decode(systemProgram)
	return instruction{
		programID: sys,
		accounts: []accountMeta{
			{pubkey: payer.PublicKey(), signer: true, writable: true},
			{pubkey: newAccount.PublicKey(), signer: true, writable: true},
		},
		data: data.Bytes(),
	}
}

// transferInstruction moves lamports between two accounts. A zero-lamport
// self transfer is the linkage record: its only purpose is the confirmed,
// timestamped signature.
func transferInstruction(from *wallet.Wallet, to []byte, lamports uint64) instruction {
	var data bytes.Buffer
	binary.Write(&data, binary.LittleEndian, sysTransfer)
	binary.Write(&data, binary.LittleEndian, lamports)

	sys, _ := base58.Decode(systemProgram)
	return instruction{
		programID: sys,
		accounts: []accountMeta{
			{pubkey: from.PublicKey(), signer: true, writable: true},
			{pubkey: to, writable: true},
		},
		data: data.Bytes(),
	}
}

// createAssetInstruction invokes the inscription program to mint the asset
// record. Strings are length-prefixed little-endian, the program's own
// argument encoding.
func createAssetInstruction(program []byte, payer, mint *wallet.Wallet, owner []byte, name, symbol, uri string) instruction {
	var data bytes.Buffer
	data.WriteByte(0) // create-asset tag
	for _, s := range []string{name, symbol, uri} {
		binary.Write(&data, binary.LittleEndian, uint32(len(s)))
		data.WriteString(s)
	}

	return instruction{
		programID: program,
		accounts: []accountMeta{
			{pubkey: payer.PublicKey(), signer: true, writable: true},
			{pubkey: mint.PublicKey(), signer: true, writable: true},
			{pubkey: owner},
		},
		data: data.Bytes(),
	}
}
