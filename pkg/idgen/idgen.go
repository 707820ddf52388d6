// Package idgen produces numeric ids and the short codes printed on orders.
package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/speps/go-hashids/v2"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Generator couples a snowflake node with a hashid encoder.
type Generator struct {
	node   *snowflake.Node
	hashID *hashids.HashID
}

func New(nodeID int64, salt string) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}

	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 10
	hd.Alphabet = codeAlphabet
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, fmt.Errorf("hashids: %w", err)
	}

	return &Generator{node: node, hashID: h}, nil
}

func (g *Generator) NextID() int64 {
	return g.node.Generate().Int64()
}

// NextCode returns a short upper-case code unique per generated id.
func (g *Generator) NextCode() string {
	code, err := g.hashID.EncodeInt64([]int64{g.NextID()})
	if err != nil {
		// only fails on negative input, snowflake ids are positive
		panic(err)
	}
	return code
}
