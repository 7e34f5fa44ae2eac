package oauth

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

var adjectives = []string{
	"Amber", "Brave", "Calm", "Clever", "Cosmic", "Curious", "Dapper", "Dizzy",
	"Eager", "Fancy", "Fluffy", "Frosty", "Gentle", "Gleaming", "Golden", "Happy",
	"Hasty", "Humble", "Icy", "Jolly", "Keen", "Lively", "Lucky", "Mellow",
	"Merry", "Misty", "Nimble", "Noble", "Odd", "Plucky", "Polite", "Quiet",
	"Rapid", "Rosy", "Rusty", "Shiny", "Silent", "Sleepy", "Snowy", "Spry",
	"Starry", "Sunny", "Swift", "Tidy", "Tiny", "Velvet", "Witty", "Zesty",
}

var animals = []string{
	"Alpaca", "Badger", "Beaver", "Bison", "Camel", "Caribou", "Crane", "Dingo",
	"Dolphin", "Eagle", "Ermine", "Falcon", "Ferret", "Finch", "Fox", "Gecko",
	"Gopher", "Hare", "Hedgehog", "Heron", "Ibex", "Jackal", "Koala", "Lemur",
	"Lynx", "Marmot", "Marten", "Moose", "Narwhal", "Newt", "Ocelot", "Otter",
	"Owl", "Panda", "Penguin", "Puffin", "Quokka", "Raccoon", "Reindeer", "Robin",
	"Seal", "Sloth", "Stoat", "Tapir", "Walrus", "Weasel", "Wombat", "Yak",
}

// DisplayName derives the public pseudonym of a player from their provider
// user ID. The same ID always yields the same name. The name space is
// 48 * 48 * 10000 entries wide, so collisions are possible but rare.
func DisplayName(providerID string) string {
	sum := blake2b.Sum256([]byte(providerID))
	adj := adjectives[binary.BigEndian.Uint64(sum[0:8])%uint64(len(adjectives))]
	animal := animals[binary.BigEndian.Uint64(sum[8:16])%uint64(len(animals))]
	suffix := binary.BigEndian.Uint64(sum[16:24]) % 10000
	return fmt.Sprintf("%s%s%04d", adj, animal, suffix)
}
