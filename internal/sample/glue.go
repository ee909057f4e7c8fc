package sample

import (
	"context"

	"github.com/leapstack-labs/starbind/internal/binding"
	"github.com/leapstack-labs/starbind/internal/container"
	"github.com/leapstack-labs/starbind/internal/convert"
	"github.com/leapstack-labs/starbind/internal/dispatch"
	"github.com/leapstack-labs/starbind/internal/object"
)

var (
	intList     = container.ListType[int64](convert.Int)
	floatList   = container.ListType[float64](convert.Float)
	complexList = container.ListType[complex128](convert.Complex)
)

var createListSig = binding.Signature{
	Name:    "createList",
	Result:  intList,
	Virtual: true,
}

// Register binds ListUser into reg. Instances created from Starlark get a virtual
// table routing createList through bridge.
func Register(reg *binding.Registry, bridge *dispatch.Bridge) (*binding.Class, error) {
	cls := binding.NewClass("ListUser", nil, NewListUser)
	cls.Doc = "Stores a list of integers and builds lists through the createList virtual."
	cls.Attach = func(native any, h binding.Handle) {
		inst, ok := h.(*object.Instance)
		if !ok {
			return
		}
		u := native.(*ListUser)
		u.SetVirtuals(&listUserShell{bridge: bridge, inst: inst, cls: cls, self: u})
	}

	cls.
		Def(createListSig, func(ctx context.Context, self any, _ []any) (any, error) {
			return self.(*ListUser).CreateList(ctx)
		}).
		Def(binding.Signature{Name: "callCreateList", Result: intList},
			func(ctx context.Context, self any, _ []any) (any, error) {
				return self.(*ListUser).CallCreateList(ctx)
			}).
		Def(binding.Signature{Name: "createComplexList", Params: []convert.Type{convert.Complex, convert.Complex}, Result: complexList, Static: true},
			func(_ context.Context, _ any, args []any) (any, error) {
				return CreateComplexList(args[0].(complex128), args[1].(complex128)), nil
			}).
		Def(binding.Signature{Name: "sumList", Params: []convert.Type{intList}, Result: convert.Int},
			func(_ context.Context, self any, args []any) (any, error) {
				return self.(*ListUser).SumList(args[0].(*container.Sequence[int64])), nil
			}).
		Def(binding.Signature{Name: "sumList", Params: []convert.Type{floatList}, Result: convert.Float},
			func(_ context.Context, self any, args []any) (any, error) {
				return self.(*ListUser).SumFloatList(args[0].(*container.Sequence[float64])), nil
			}).
		Def(binding.Signature{Name: "setList", Params: []convert.Type{intList}, Result: convert.None},
			func(_ context.Context, self any, args []any) (any, error) {
				self.(*ListUser).SetList(args[0].(*container.Sequence[int64]))
				return nil, nil
			}).
		Def(binding.Signature{Name: "getList", Result: intList},
			func(_ context.Context, self any, _ []any) (any, error) {
				return self.(*ListUser).GetList(), nil
			})

	if err := reg.Register(cls); err != nil {
		return nil, err
	}
	return cls, nil
}

// listUserShell is the per-instance virtual table of a ListUser created from
// Starlark.
type listUserShell struct {
	bridge *dispatch.Bridge
	inst   *object.Instance
	cls    *binding.Class
	self   *ListUser
}

func (s *listUserShell) CreateList(ctx context.Context) (*container.Sequence[int64], error) {
	result, err := s.bridge.Invoke(ctx, s.inst, s.cls, createListSig, nil, func() (any, error) {
		return s.self.CreateList(ctx)
	})
	if err != nil {
		return nil, err
	}
	return container.FromNative[int64](result)
}
