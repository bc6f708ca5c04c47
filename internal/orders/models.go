package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/custom-orders/internal/apperr"
)

type Size string

const (
	SizeSmall      Size = "small"
	SizeMedium     Size = "medium"
	SizeLarge      Size = "large"
	SizeExtraLarge Size = "extra_large"
)

var Sizes = []Size{SizeSmall, SizeMedium, SizeLarge, SizeExtraLarge}

type Color string

const (
	ColorRed    Color = "red"
	ColorBlue   Color = "blue"
	ColorBlack  Color = "black"
	ColorWhite  Color = "white"
	ColorPink   Color = "pink"
	ColorPurple Color = "purple"
	ColorGreen  Color = "green"
)

var Colors = []Color{ColorRed, ColorBlue, ColorBlack, ColorWhite, ColorPink, ColorPurple, ColorGreen}

type Design string

const (
	DesignStrawHatJollyRoger Design = "straw_hat_jolly_roger"
	DesignRoronoaZoroSwords  Design = "roronoa_zoro_swords"
	DesignGoingMerry         Design = "going_merry"
	DesignThousandSunny      Design = "thousand_sunny"
	DesignMonkeyDLuffy       Design = "monkey_d_luffy"
	DesignPirateKing         Design = "pirate_king"
	DesignWantedPoster       Design = "wanted_poster"
)

var Designs = []Design{
	DesignStrawHatJollyRoger, DesignRoronoaZoroSwords, DesignGoingMerry,
	DesignThousandSunny, DesignMonkeyDLuffy, DesignPirateKing, DesignWantedPoster,
}

type Material string

const (
	MaterialCotton    Material = "cotton"
	MaterialPolyester Material = "polyester"
	MaterialMixed     Material = "mixed"
)

var Materials = []Material{MaterialCotton, MaterialPolyester, MaterialMixed}

type ResourceType string

const (
	ResourceColor    ResourceType = "COLOR"
	ResourceMaterial ResourceType = "MATERIAL"
)

func ParseResourceType(s string) (ResourceType, error) {
	switch ResourceType(strings.ToUpper(strings.TrimSpace(s))) {
	case ResourceColor:
		return ResourceColor, nil
	case ResourceMaterial:
		return ResourceMaterial, nil
	}
	return "", fmt.Errorf("%w: invalid resource type %q", apperr.ErrBadRequest, s)
}

// ResourceKey addresses one ledger row. Names are stored upper-case.
type ResourceKey struct {
	Type ResourceType
	Name string
}

func (k ResourceKey) String() string { return string(k.Type) + "/" + k.Name }

func NormalizeResourceName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func ColorKey(c Color) ResourceKey {
	return ResourceKey{Type: ResourceColor, Name: NormalizeResourceName(string(c))}
}

func MaterialKey(m Material) ResourceKey {
	return ResourceKey{Type: ResourceMaterial, Name: NormalizeResourceName(string(m))}
}

type Resource struct {
	ID        string       `json:"id"`
	Type      ResourceType `json:"type"`
	Name      string       `json:"name"`
	Quantity  int          `json:"quantity"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (r Resource) Key() ResourceKey { return ResourceKey{Type: r.Type, Name: r.Name} }

type Order struct {
	ID        string    `json:"id"`
	Size      Size      `json:"size"`
	Color     Color     `json:"color"`
	Design    Design    `json:"design"`
	Material  Material  `json:"material"`
	Quantity  int       `json:"quantity"`
	Status    Status    `json:"order_status"`
	OwnerID   string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// reservations is what the order currently holds in the ledger.
func (o Order) reservations() []Line {
	return []Line{
		{Key: ColorKey(o.Color), Amount: o.Quantity},
		{Key: MaterialKey(o.Material), Amount: o.Quantity},
	}
}

// Holds reports whether the order reserves stock on the ledger row k.
func (o Order) Holds(k ResourceKey) bool {
	for _, l := range o.reservations() {
		if l.Key == k {
			return true
		}
	}
	return false
}

// OrderInput is the raw, unvalidated form of the customizable fields.
type OrderInput struct {
	Size     string `json:"size"`
	Color    string `json:"color"`
	Design   string `json:"design"`
	Material string `json:"material"`
	Quantity int    `json:"quantity"`
}

// OrderSpec is an OrderInput that passed validation.
type OrderSpec struct {
	Size     Size
	Color    Color
	Design   Design
	Material Material
	Quantity int
}

func ParseOrderSpec(in OrderInput) (OrderSpec, error) {
	var (
		spec OrderSpec
		err  error
	)
	if spec.Size, err = parseEnum("size", in.Size, Sizes); err != nil {
		return OrderSpec{}, err
	}
	if spec.Color, err = parseEnum("color", in.Color, Colors); err != nil {
		return OrderSpec{}, err
	}
	if spec.Design, err = parseEnum("design", in.Design, Designs); err != nil {
		return OrderSpec{}, err
	}
	if spec.Material, err = parseEnum("material", in.Material, Materials); err != nil {
		return OrderSpec{}, err
	}
	if in.Quantity <= 0 {
		return OrderSpec{}, fmt.Errorf("%w: quantity must be positive", apperr.ErrBadRequest)
	}
	spec.Quantity = in.Quantity
	return spec, nil
}

func (s OrderSpec) apply(o *Order) {
	o.Size = s.Size
	o.Color = s.Color
	o.Design = s.Design
	o.Material = s.Material
	o.Quantity = s.Quantity
}

type ResourceInput struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

func parseResourceInput(in ResourceInput) (ResourceType, string, error) {
	typ, err := ParseResourceType(in.Type)
	if err != nil {
		return "", "", err
	}
	name := NormalizeResourceName(in.Name)
	if name == "" {
		return "", "", fmt.Errorf("%w: resource name is required", apperr.ErrBadRequest)
	}
	if in.Quantity < 0 {
		return "", "", fmt.Errorf("%w: quantity cannot be negative", apperr.ErrBadRequest)
	}
	return typ, name, nil
}

func parseEnum[T ~string](field, raw string, valid []T) (T, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	for _, v := range valid {
		if string(v) == norm {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: invalid %s %q", apperr.ErrBadRequest, field, raw)
}
