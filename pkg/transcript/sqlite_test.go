package transcript_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pentestai/pentestai/pkg/transcript"
)

// storerBehaviour runs the shared Storer contract against newStorer.
func storerBehaviour(newStorer func() transcript.Storer) {
	var (
		storer transcript.Storer
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		storer = newStorer()
	})

	AfterEach(func() {
		Expect(storer.Close()).To(Succeed())
	})

	It("stores and retrieves a node", func() {
		node := transcript.NewNode(turn("user", "hello"), nil)

		isNew, err := storer.Put(ctx, node)
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew).To(BeTrue())

		got, err := storer.Get(ctx, node.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Hash).To(Equal(node.Hash))
		Expect(got.Content).To(Equal(node.Content))
		Expect(got.ParentHash).To(BeNil())
		Expect(got.Verify()).To(BeTrue())
	})

	It("keeps the parent link", func() {
		parent := transcript.NewNode(turn("user", "q"), nil)
		child := transcript.NewNode(turn("assistant", "a"), parent)
		_, err := transcript.Record(ctx, storer, []*transcript.Node{parent, child})
		Expect(err).NotTo(HaveOccurred())

		got, err := storer.Get(ctx, child.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ParentHash).NotTo(BeNil())
		Expect(*got.ParentHash).To(Equal(parent.Hash))
	})

	It("returns ErrNotFound for unknown hashes", func() {
		_, err := storer.Get(ctx, "nonexistent")
		Expect(err).To(MatchError(transcript.ErrNotFound{Hash: "nonexistent"}))
	})

	It("deduplicates identical nodes", func() {
		node := transcript.NewNode(turn("user", "hello"), nil)
		_, err := storer.Put(ctx, node)
		Expect(err).NotTo(HaveOccurred())

		isNew, err := storer.Put(ctx, transcript.NewNode(turn("user", "hello"), nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew).To(BeFalse())

		nodes, err := storer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
	})

	It("branches different replies from a shared prefix", func() {
		q := transcript.NewNode(turn("user", "What is 2+2?"), nil)
		a1 := transcript.NewNode(turn("assistant", "4."), q)
		a2 := transcript.NewNode(turn("assistant", "The answer is 4!"), q)
		for _, n := range []*transcript.Node{q, a1, a2} {
			_, err := storer.Put(ctx, n)
			Expect(err).NotTo(HaveOccurred())
		}

		leaves, err := storer.Leaves(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(leaves).To(HaveLen(2))
		Expect([]string{leaves[0].Hash, leaves[1].Hash}).To(ConsistOf(a1.Hash, a2.Hash))
	})

	It("walks the ancestry from a node back to the root", func() {
		n1 := transcript.NewNode(turn("user", "one"), nil)
		n2 := transcript.NewNode(turn("assistant", "two"), n1)
		n3 := transcript.NewNode(turn("user", "three"), n2)
		head, err := transcript.Record(ctx, storer, []*transcript.Node{n1, n2, n3})
		Expect(err).NotTo(HaveOccurred())
		Expect(head).To(Equal(n3.Hash))

		chain, err := transcript.Ancestry(ctx, storer, head)
		Expect(err).NotTo(HaveOccurred())
		Expect(chain).To(HaveLen(3))
		Expect(chain[0].Hash).To(Equal(n3.Hash))
		Expect(chain[2].Hash).To(Equal(n1.Hash))
	})
}

var _ = Describe("MemoryStorer", func() {
	storerBehaviour(func() transcript.Storer { return transcript.NewMemoryStorer() })

	Describe("with a node cap", func() {
		var ctx context.Context

		BeforeEach(func() {
			ctx = context.Background()
		})

		It("evicts the oldest conversation as a whole", func() {
			storer := transcript.NewMemoryStorer(transcript.WithMaxNodes(3))
			a1 := transcript.NewNode(turn("user", "first question"), nil)
			a2 := transcript.NewNode(turn("assistant", "first answer"), a1)
			b1 := transcript.NewNode(turn("user", "second question"), nil)
			b2 := transcript.NewNode(turn("assistant", "second answer"), b1)

			_, err := transcript.Record(ctx, storer, []*transcript.Node{a1, a2, b1, b2})
			Expect(err).NotTo(HaveOccurred())

			_, err = storer.Get(ctx, a1.Hash)
			Expect(err).To(MatchError(transcript.ErrNotFound{Hash: a1.Hash}))
			_, err = storer.Get(ctx, a2.Hash)
			Expect(err).To(MatchError(transcript.ErrNotFound{Hash: a2.Hash}))

			chain, err := transcript.Ancestry(ctx, storer, b2.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(chain).To(HaveLen(2))

			nodes, err := storer.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(2))

			leaves, err := storer.Leaves(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(leaves).To(HaveLen(1))
			Expect(leaves[0].Hash).To(Equal(b2.Hash))
		})

		It("never evicts the ancestors of the node being stored", func() {
			storer := transcript.NewMemoryStorer(transcript.WithMaxNodes(2))
			n1 := transcript.NewNode(turn("user", "one"), nil)
			n2 := transcript.NewNode(turn("assistant", "two"), n1)
			n3 := transcript.NewNode(turn("user", "three"), n2)

			_, err := transcript.Record(ctx, storer, []*transcript.Node{n1, n2, n3})
			Expect(err).NotTo(HaveOccurred())

			chain, err := transcript.Ancestry(ctx, storer, n3.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(chain).To(HaveLen(3))
		})

		It("stays bounded over many conversations", func() {
			storer := transcript.NewMemoryStorer(transcript.WithMaxNodes(10))
			for i := range 100 {
				q := transcript.NewNode(turn("user", fmt.Sprintf("question %d", i)), nil)
				a := transcript.NewNode(turn("assistant", "answer"), q)
				_, err := transcript.Record(ctx, storer, []*transcript.Node{q, a})
				Expect(err).NotTo(HaveOccurred())
			}

			nodes, err := storer.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(nodes)).To(BeNumerically("<=", 10))
		})
	})
})

var _ = Describe("SQLiteStorer", func() {
	storerBehaviour(func() transcript.Storer {
		s, err := transcript.NewSQLiteStorer(":memory:")
		Expect(err).NotTo(HaveOccurred())
		return s
	})

	It("creates the database file", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "transcripts.db")

		s, err := transcript.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		_, err = os.Stat(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	It("persists nodes across reopen", func() {
		ctx := context.Background()
		dbPath := filepath.Join(GinkgoT().TempDir(), "transcripts.db")

		s, err := transcript.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		node := transcript.NewNode(turn("user", "persist me"), nil)
		_, err = s.Put(ctx, node)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Close()).To(Succeed())

		s, err = transcript.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()
		got, err := s.Get(ctx, node.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Content.Content).To(Equal("persist me"))
	})
})
