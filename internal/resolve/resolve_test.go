package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hybridseq/internal/item"
)

func page(src item.Source, items ...item.Item) item.Page {
	return item.Page{Source: src, Items: items}
}

func it(id string, ord int64, name string) item.Item {
	return item.Item{ID: id, OrderKey: ord, Payload: item.Payload{Name: name}}
}

func ids(items []item.Item) []string {
	out := make([]string, len(items))
	for i, x := range items {
		out[i] = x.ID
	}
	return out
}

// Local [a(1,10), b(2,20)], Remote [b(2,20), c(3,30)] -> {a, b(local), c}.
func TestResolve_LocalWins(t *testing.T) {
	local := []item.Page{page(item.SourceLocal, it("1", 10, "a"), it("2", 20, "b-local"))}
	remote := []item.Page{page(item.SourceRemote, it("2", 20, "b-remote"), it("3", 30, "c"))}

	res := Resolve(local, remote)

	require.Len(t, res.Items, 3)
	assert.Equal(t, []string{"1", "2", "3"}, ids(res.Items))
	assert.Equal(t, item.SourceLocal, res.Items[1].Source)
	assert.Equal(t, "b-local", res.Items[1].Payload.Name)
	assert.Equal(t, item.SourceRemote, res.Items[2].Source)
	assert.Zero(t, res.Dropped)
	assert.Empty(t, res.Duplicates)
}

func TestResolve_PreservesInputOrderNotOrderKey(t *testing.T) {
	local := []item.Page{page(item.SourceLocal, it("b", 20, ""), it("a", 10, ""))}
	remote := []item.Page{page(item.SourceRemote, it("d", 5, ""), it("c", 1, ""))}

	res := Resolve(local, remote)
	assert.Equal(t, []string{"b", "a", "d", "c"}, ids(res.Items))
}

func TestResolve_EmptySides(t *testing.T) {
	side := []item.Page{page(item.SourceLocal, it("1", 10, ""), it("2", 20, ""))}

	onlyLocal := Resolve(side, nil)
	assert.Equal(t, []string{"1", "2"}, ids(onlyLocal.Items))

	remoteSide := []item.Page{page(item.SourceRemote, it("1", 10, ""), it("2", 20, ""))}
	onlyRemote := Resolve(nil, remoteSide)
	assert.Equal(t, []string{"1", "2"}, ids(onlyRemote.Items))
	for _, x := range onlyRemote.Items {
		assert.Equal(t, item.SourceRemote, x.Source)
	}

	none := Resolve(nil, nil)
	assert.NotNil(t, none.Items)
	assert.Empty(t, none.Items)
}

func TestResolve_DropsMissingIDs(t *testing.T) {
	local := []item.Page{page(item.SourceLocal, it("", 10, ""), it("1", 20, ""), it("-", 25, ""))}
	remote := []item.Page{page(item.SourceRemote, it("", 30, ""), it(" -- ", 40, ""))}

	res := Resolve(local, remote)
	assert.Equal(t, []string{"1"}, ids(res.Items))
	assert.Equal(t, 4, res.Dropped)
	assert.Empty(t, res.Duplicates, "blank IDs are dropped, not collapsed")
}

func TestResolve_DuplicatesAcrossPagesKeepFirst(t *testing.T) {
	local := []item.Page{
		page(item.SourceLocal, it("1", 10, "first")),
		page(item.SourceLocal, it("1", 10, "second"), it("2", 20, "")),
	}

	res := Resolve(local, nil)
	require.Equal(t, []string{"1", "2"}, ids(res.Items))
	assert.Equal(t, "first", res.Items[0].Payload.Name)
	require.Len(t, res.Duplicates, 1)
	assert.Equal(t, item.SourceLocal, res.Duplicates[0].Source)
	assert.Contains(t, res.Duplicates[0].Error(), `"1"`)
}

func TestResolve_NormalizedIDsCollapse(t *testing.T) {
	local := []item.Page{page(item.SourceLocal, it("0190a1b2c3d4", 10, "local"))}
	remote := []item.Page{page(item.SourceRemote, it("0190A1B2-C3D4", 10, "cloud"))}

	res := Resolve(local, remote)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "local", res.Items[0].Payload.Name)
}

// Property: for every shared id, exactly one item survives and it is local.
func TestResolve_DedupInvariant(t *testing.T) {
	var localItems, remoteItems []item.Item
	for i := 0; i < 50; i++ {
		id := string(rune('A' + i%26))
		if i%2 == 0 {
			localItems = append(localItems, it(id+"x", int64(i), "l"))
		}
		if i%3 == 0 {
			remoteItems = append(remoteItems, it(id+"x", int64(i), "r"))
		}
	}

	res := Resolve(
		[]item.Page{page(item.SourceLocal, localItems...)},
		[]item.Page{page(item.SourceRemote, remoteItems...)},
	)

	localIDs := make(map[string]bool)
	for _, x := range localItems {
		localIDs[x.Key()] = true
	}
	count := make(map[string]int)
	for _, x := range res.Items {
		count[x.Key()]++
		if localIDs[x.Key()] {
			assert.Equal(t, item.SourceLocal, x.Source, "id %s", x.ID)
		}
	}
	for id, n := range count {
		assert.Equal(t, 1, n, "id %s", id)
	}
}

func TestReconcile_RetiresObservedOptimistic(t *testing.T) {
	current := []item.Item{
		it("1", 10, "").WithSource(item.SourceLocal),
		it("new", 15, "").WithSource(item.SourceOptimistic),
		it("other", 25, "").WithSource(item.SourceOptimistic),
	}
	durable := []item.Item{
		it("1", 10, "").WithSource(item.SourceLocal),
		it("NEW", 15, "").WithSource(item.SourceLocal),
	}

	items, retired := Reconcile(current, durable)
	assert.Equal(t, []string{"1", "other"}, ids(items))
	assert.Equal(t, []string{"new"}, retired)
}

func TestReconcile_IgnoresOptimisticInDurableInput(t *testing.T) {
	current := []item.Item{it("x", 1, "").WithSource(item.SourceOptimistic)}
	durable := []item.Item{it("x", 1, "").WithSource(item.SourceOptimistic)}

	items, retired := Reconcile(current, durable)
	assert.Len(t, items, 1)
	assert.Empty(t, retired)
}
